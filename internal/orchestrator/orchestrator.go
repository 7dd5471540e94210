package orchestrator

import (
	"context"
	"errors"
	"time"

	"llm-autotrader/internal/audit"
	"llm-autotrader/internal/bus"
	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/news"
	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/trace"
	"llm-autotrader/internal/types"
)

// Version is stamped on every persisted run row.
const Version = "1.0"

// Orchestrator drives the persona graph for one run at a time. Instances are
// safe for concurrent Execute calls; all per-run state lives on the State
// value.
type Orchestrator struct {
	chat    interfaces.Chat
	bus     *bus.Bus
	store   *persist.Store
	cache   cache.Store
	news    *news.Service
	metrics *metrics.Recorder
	auditor *audit.Log

	// resolveBroker is read exactly once per run, at the submission boundary,
	// so a runtime-mode flip never splits a run's orders across brokers.
	resolveBroker func() interfaces.Broker

	investRounds    int
	riskRounds      int
	maxPositionSize float64
}

type Params struct {
	Chat            interfaces.Chat
	Bus             *bus.Bus
	Store           *persist.Store
	Cache           cache.Store
	News            *news.Service
	Metrics         *metrics.Recorder
	Auditor         *audit.Log
	ResolveBroker   func() interfaces.Broker
	InvestRounds    int
	RiskRounds      int
	MaxPositionSize float64
}

func New(p Params) *Orchestrator {
	if p.InvestRounds <= 0 {
		p.InvestRounds = 3
	}
	if p.RiskRounds <= 0 {
		p.RiskRounds = 3
	}
	return &Orchestrator{
		chat:            p.Chat,
		bus:             p.Bus,
		store:           p.Store,
		cache:           p.Cache,
		news:            p.News,
		metrics:         p.Metrics,
		auditor:         p.Auditor,
		resolveBroker:   p.ResolveBroker,
		investRounds:    p.InvestRounds,
		riskRounds:      p.RiskRounds,
		maxPositionSize: p.MaxPositionSize,
	}
}

// RunSpec identifies one run to execute.
type RunSpec struct {
	RunID    string
	Symbol   string
	ModelID  string
	Question string
	Analysts []string
}

// Result is what the scheduler records when Execute returns.
type Result struct {
	Status   types.RunStatus
	Decision *types.Decision
	Err      string
}

// StepFn receives progress updates as stages complete.
type StepFn func(step types.ProgressStep)

type stage struct {
	name string
	fn   func(context.Context, State) (State, error)
}

// Execute walks the persona graph to a terminal event. Node errors short
// circuit to finalization; they never panic out or leave the event log
// unsealed.
func (o *Orchestrator) Execute(ctx context.Context, spec RunSpec, onStep StepFn) Result {
	ctx, span := trace.StartSpan(ctx, "orchestrator.Execute")
	defer span.End()

	state := State{
		RunID:           spec.RunID,
		Symbol:          spec.Symbol,
		TradeDate:       time.Now().UTC().Format("2006-01-02"),
		ModelID:         spec.ModelID,
		Question:        spec.Question,
		EnabledAnalysts: spec.Analysts,
	}

	stages := []stage{
		{"load_memories", o.loadMemories},
		{"analysts", o.runAnalysts},
		{"investment_debate", o.investmentDebate},
		{"research_manager", o.researchManager},
		{"trader", o.trader},
		{"risk_debate", o.riskDebate},
		{"risk_judge", o.riskJudge},
	}

	for i, st := range stages {
		if err := ctx.Err(); err != nil {
			return o.finishInterrupted(ctx, state, err)
		}

		o.publish(state.RunID, st.name, "started", 0)
		o.step(onStep, st.name, types.StepInProgress, i, len(stages)+1)

		var err error
		tokensBefore := state.TokensUsed
		state, err = st.fn(ctx, state)
		if err != nil {
			if interrupted(err) {
				return o.finishInterrupted(ctx, state, err)
			}
			state = state.appendError(st.name, err)
			o.publish(state.RunID, st.name, "failed", state.TokensUsed-tokensBefore)
			o.step(onStep, st.name, types.StepFailed, i+1, len(stages)+1)
			return o.finalize(ctx, state, onStep)
		}

		o.publish(state.RunID, st.name, "completed", state.TokensUsed-tokensBefore)
		o.step(onStep, st.name, types.StepCompleted, i+1, len(stages)+1)
	}

	return o.finalize(ctx, state, onStep)
}

// finalize persists the run and submits the order, then seals the log. Both
// the write and the terminal event happen here and nowhere else.
func (o *Orchestrator) finalize(ctx context.Context, s State, onStep StepFn) Result {
	// Node errors were collected upstream; no rows and no order on failure.
	if len(s.Errors) > 0 || s.FinalDecision == nil {
		msg := "run failed"
		if len(s.Errors) > 0 {
			msg = s.Errors[0]
		}
		o.publish(s.RunID, "finalize", "started", 0)
		o.terminal(s.RunID, types.RunFailed, msg, errCode(s))
		o.recordOutcome(string(types.RunFailed))
		return Result{Status: types.RunFailed, Err: msg}
	}

	d := *s.FinalDecision

	// Persistence commits before the terminal event so subscribers never see
	// completed without the rows behind it.
	record := persist.RunRecord{
		RunID:               s.RunID,
		Symbol:              s.Symbol,
		ModelID:             s.ModelID,
		Analysts:            s.EnabledAnalysts,
		OrchestratorVersion: Version,
		LogsRef:             s.RunID,
		CreatedAt:           time.Now(),
	}
	// Detached context: a cancel arriving here must not abort a write whose
	// decision work already finished.
	o.publish(s.RunID, "persist_memories", "started", 0)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := o.store.FinalizeRun(persistCtx, record, d); err != nil {
		logger.ErrorWithErr(ctx, "Run finalization write failed", err, "run_id", s.RunID)
		o.publish(s.RunID, "persist_memories", "failed", 0)
		o.terminal(s.RunID, types.RunFailed, "persistence failure", string(errs.PersistenceError))
		o.recordOutcome(string(types.RunFailed))
		return Result{Status: types.RunFailed, Err: err.Error()}
	}
	o.publish(s.RunID, "persist_memories", "completed", 0)
	o.publish(s.RunID, "finalize", "started", 0)

	if o.auditor != nil {
		o.auditor.AppendDecision(audit.DecisionEntry{
			RunID:      s.RunID,
			Symbol:     s.Symbol,
			Token:      string(d.Token),
			Confidence: d.Confidence,
			Size:       d.Size,
			ModelID:    s.ModelID,
			Rationale:  d.Rationale,
		})
	}

	o.submitOrder(ctx, s, d)

	o.step(onStep, "finalize", types.StepCompleted, 1, 1)
	o.terminalWithPayload(s.RunID, types.RunCompleted, "run completed", "", map[string]any{
		"decision_token": string(d.Token),
		"confidence":     d.Confidence,
		"size":           d.Size,
	}, s.TokensUsed)
	o.recordOutcome(string(types.RunCompleted))
	return Result{Status: types.RunCompleted, Decision: &d}
}

// submitOrder routes an actionable decision through the broker resolved at
// this boundary. Submission failures are logged on the run, not fatal: the
// decision row is already committed.
func (o *Orchestrator) submitOrder(ctx context.Context, s State, d types.Decision) {
	if d.Token != types.TokenBuy && d.Token != types.TokenSell {
		return
	}
	if d.Size <= 0 || o.resolveBroker == nil {
		return
	}

	broker := o.resolveBroker()
	if broker == nil {
		return
	}

	side := types.SideBuy
	if d.Token == types.TokenSell {
		side = types.SideSell
	}

	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
	defer cancel()
	order, err := broker.PlaceOrder(orderCtx, types.OrderRequest{
		Symbol: s.Symbol,
		Side:   side,
		Kind:   types.OrderMarket,
		Qty:    d.Size,
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Decision order submission failed", err,
			"run_id", s.RunID, "symbol", s.Symbol, "side", string(side))
		o.publish(s.RunID, "submit_order", "failed", 0)
		return
	}
	logger.Info(ctx, "Decision order submitted",
		"run_id", s.RunID, "symbol", s.Symbol, "order_id", order.ID, "broker", broker.Name())
	o.publish(s.RunID, "submit_order", "completed", 0)
}

// finishInterrupted maps context termination to the cancelled or timeout
// terminal. No rows are written for an interrupted run.
func (o *Orchestrator) finishInterrupted(ctx context.Context, s State, cause error) Result {
	status := types.RunCancelled
	code := string(errs.Cancelled)
	msg := "run cancelled"
	if errors.Is(cause, context.DeadlineExceeded) {
		status = types.RunTimeout
		code = string(errs.Timeout)
		msg = "run exceeded time budget"
	}
	o.terminal(s.RunID, status, msg, code)
	o.recordOutcome(string(status))
	return Result{Status: status, Err: msg}
}

func interrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (o *Orchestrator) publish(runID, stage, status string, tokens int) {
	if o.bus == nil {
		return
	}
	err := o.bus.Publish(runID, bus.Event{
		RunID:      runID,
		Stage:      stage,
		Status:     status,
		TokensUsed: tokens,
	})
	if err != nil {
		logger.Warn(context.Background(), "Event publish failed", "run_id", runID, "stage", stage, "error", err)
	}
	if o.metrics != nil {
		o.metrics.RecordBusEvent(stage)
	}
}

func (o *Orchestrator) terminal(runID string, status types.RunStatus, msg, code string) {
	o.terminalWithPayload(runID, status, msg, code, nil, 0)
}

func (o *Orchestrator) terminalWithPayload(runID string, status types.RunStatus, msg, code string, payload map[string]any, tokens int) {
	if o.bus == nil {
		return
	}
	err := o.bus.Terminate(runID, bus.Event{
		RunID:      runID,
		Stage:      "finalize",
		Status:     string(status),
		Message:    msg,
		ErrorCode:  code,
		TokensUsed: tokens,
		Payload:    payload,
	})
	if err != nil {
		logger.Warn(context.Background(), "Terminal publish failed", "run_id", runID, "status", string(status), "error", err)
	}
}

func (o *Orchestrator) recordOutcome(status string) {
	if o.metrics != nil {
		o.metrics.RecordRunOutcome(status)
	}
}

func (o *Orchestrator) step(onStep StepFn, name string, status types.StepStatus, done, total int) {
	if onStep == nil {
		return
	}
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}
	onStep(types.ProgressStep{Name: name, Status: status, Percent: percent, At: time.Now()})
}

func errCode(s State) string {
	if len(s.Errors) == 0 {
		return ""
	}
	return "NodeError"
}
