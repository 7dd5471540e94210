package scheduler

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/orchestrator"
	"llm-autotrader/internal/types"
)

var symbolRe = regexp.MustCompile(`^[A-Z]{1,5}$`)

// Scheduler owns the decision cadence and the run registry. At most one run
// per symbol is in flight; a global cap bounds total concurrency.
type Scheduler struct {
	orch      *orchestrator.Orchestrator
	metrics   *metrics.Recorder
	symbols   []string
	interval  time.Duration
	timeout   time.Duration
	retention time.Duration

	defaultModel    string
	allowedModels   map[string]bool
	defaultAnalysts []string

	maxConcurrent int

	mu       sync.Mutex
	runs     map[string]*runEntry // by runId
	active   map[string]string    // symbol -> running runId
	cancels  map[string]context.CancelFunc
	inFlight int

	wg sync.WaitGroup
}

type runEntry struct {
	run types.DecisionRun
}

type Params struct {
	Orchestrator    *orchestrator.Orchestrator
	Metrics         *metrics.Recorder
	Symbols         []string
	Interval        time.Duration
	RunTimeout      time.Duration
	DefaultModel    string
	AllowedModels   []string
	DefaultAnalysts []string
	MaxConcurrent   int
	Retention       time.Duration
}

func New(p Params) *Scheduler {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Minute
	}
	if p.RunTimeout <= 0 {
		p.RunTimeout = 10 * time.Minute
	}
	if p.MaxConcurrent <= 0 {
		p.MaxConcurrent = 3
	}
	if p.Retention <= 0 {
		p.Retention = 24 * time.Hour
	}
	allowed := make(map[string]bool, len(p.AllowedModels))
	for _, m := range p.AllowedModels {
		allowed[m] = true
	}
	symbols := make([]string, len(p.Symbols))
	for i, s := range p.Symbols {
		symbols[i] = types.NormalizeSymbol(s)
	}
	return &Scheduler{
		orch:            p.Orchestrator,
		metrics:         p.Metrics,
		symbols:         symbols,
		interval:        p.Interval,
		timeout:         p.RunTimeout,
		retention:       p.Retention,
		defaultModel:    p.DefaultModel,
		allowedModels:   allowed,
		defaultAnalysts: p.DefaultAnalysts,
		maxConcurrent:   p.MaxConcurrent,
		runs:            make(map[string]*runEntry),
		active:          make(map[string]string),
		cancels:         make(map[string]context.CancelFunc),
	}
}

// Run drives the periodic evaluation loop until ctx is cancelled, then waits
// for in-flight runs to reach a terminal state.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info(ctx, "Decision scheduler started",
		"symbols", s.symbols,
		"interval", s.interval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Decision scheduler stopping, waiting for in-flight runs")
			s.wg.Wait()
			return
		case <-ticker.C:
			for _, symbol := range s.symbols {
				_, err := s.StartRun(ctx, StartOptions{Symbol: symbol})
				if err != nil && errs.KindOf(err) != errs.Busy {
					logger.Warn(ctx, "Scheduled run not started", "symbol", symbol, "error", err)
				}
			}
			if s.metrics != nil {
				s.metrics.RecordTick("decision", "ok")
			}
			s.evictTerminal(time.Now().Add(-s.retention))
		}
	}
}

// evictTerminal drops terminal runs that settled before cutoff from the
// registry. The decision journal keeps the durable record; the registry only
// serves recent status polls.
func (s *Scheduler) evictTerminal(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.runs {
		if entry.run.CompletedAt != nil && entry.run.CompletedAt.Before(cutoff) {
			delete(s.runs, id)
		}
	}
}

// StartOptions selects what a run evaluates. Zero-valued fields fall back to
// configuration.
type StartOptions struct {
	Symbol   string
	ModelID  string
	Analysts []string
	Question string
}

// StartRun validates, reserves capacity and launches the run asynchronously.
// The returned runId is immediately pollable via GetRun.
func (s *Scheduler) StartRun(ctx context.Context, opts StartOptions) (string, error) {
	symbol := types.NormalizeSymbol(opts.Symbol)
	if !symbolRe.MatchString(symbol) {
		return "", errs.New(errs.InvalidInput, "bad_symbol", "symbol must match ^[A-Z]{1,5}$")
	}

	model := opts.ModelID
	if model == "" {
		model = s.defaultModel
	}
	if len(s.allowedModels) > 0 && !s.allowedModels[model] {
		return "", errs.New(errs.InvalidInput, "model_not_allowed", "model id is not in the allowlist")
	}

	analysts := opts.Analysts
	if opts.Analysts == nil {
		analysts = s.defaultAnalysts
	}
	if len(analysts) == 0 {
		return "", errs.New(errs.InvalidInput, "no_analysts", "at least one analyst is required")
	}
	for _, a := range analysts {
		switch a {
		case orchestrator.AnalystFundamental, orchestrator.AnalystMarket,
			orchestrator.AnalystNews, orchestrator.AnalystSocial:
		default:
			return "", errs.New(errs.InvalidInput, "unknown_analyst", "unknown analyst persona: "+a)
		}
	}

	runID := uuid.NewString()

	s.mu.Lock()
	if _, busy := s.active[symbol]; busy {
		s.mu.Unlock()
		return "", errs.New(errs.Busy, "symbol_busy", "a run for this symbol is already in flight")
	}
	if s.inFlight >= s.maxConcurrent {
		s.mu.Unlock()
		return "", errs.New(errs.Busy, "saturated", "global run concurrency cap reached")
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.active[symbol] = runID
	s.cancels[runID] = cancel
	s.inFlight++
	s.runs[runID] = &runEntry{run: types.DecisionRun{
		RunID:     runID,
		Symbol:    symbol,
		ModelID:   model,
		Analysts:  analysts,
		Status:    types.RunRunning,
		StartedAt: time.Now(),
	}}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	spec := orchestrator.RunSpec{
		RunID:    runID,
		Symbol:   symbol,
		ModelID:  model,
		Question: opts.Question,
		Analysts: analysts,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		logger.RunEvent(runCtx, runID, symbol, "run", "started", "model", model)
		result := s.orch.Execute(runCtx, spec, func(step types.ProgressStep) {
			s.recordStep(runID, step)
		})
		s.settle(runID, symbol, result)
		logger.RunEvent(runCtx, runID, symbol, "run", string(result.Status))
	}()

	return runID, nil
}

func (s *Scheduler) recordStep(runID string, step types.ProgressStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.runs[runID]
	if !ok {
		return
	}
	// Same stage transitions overwrite in place; new stages append.
	steps := entry.run.Steps
	if n := len(steps); n > 0 && steps[n-1].Name == step.Name {
		steps[n-1] = step
	} else {
		steps = append(steps, step)
	}
	entry.run.Steps = steps
}

func (s *Scheduler) settle(runID, symbol string, result orchestrator.Result) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.runs[runID]; ok {
		entry.run.Status = result.Status
		entry.run.CompletedAt = &now
		entry.run.Result = result.Decision
		entry.run.Error = result.Err
	}
	if s.active[symbol] == runID {
		delete(s.active, symbol)
	}
	delete(s.cancels, runID)
	s.inFlight--

	if s.metrics != nil {
		s.metrics.RunFinished()
	}
}

// GetRun returns a snapshot of the run's current state.
func (s *Scheduler) GetRun(runID string) (types.DecisionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.runs[runID]
	if !ok {
		return types.DecisionRun{}, errs.New(errs.NotFound, "run_not_found", "unknown run id")
	}

	snap := entry.run
	snap.Steps = append([]types.ProgressStep(nil), entry.run.Steps...)
	snap.Analysts = append([]string(nil), entry.run.Analysts...)
	return snap, nil
}

// CancelRun flips the run's cooperative cancel signal. Returns false when the
// run is unknown or already terminal.
func (s *Scheduler) CancelRun(runID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancels[runID]
	s.mu.Unlock()

	if !ok {
		return false
	}
	cancel()
	return true
}
