package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/marketdata"
	"llm-autotrader/internal/types"
)

// Analyst persona ids accepted by startRun.
const (
	AnalystFundamental = "fundamental"
	AnalystMarket      = "market"
	AnalystNews        = "news"
	AnalystSocial      = "social"
)

// analystOrder fixes the merge order of parallel analyst output so the
// conversation log is identical across replays.
var analystOrder = []string{AnalystFundamental, AnalystMarket, AnalystNews, AnalystSocial}

// call runs one persona completion, charging tokens and the transcript to the
// state.
func (o *Orchestrator) call(ctx context.Context, s State, persona, system, user string) (State, string, error) {
	reply, err := o.chat.Complete(ctx, s.ModelID, system, user)
	if err != nil {
		return s, "", err
	}
	s.TokensUsed += reply.TokensUsed
	s = s.appendLog(persona, reply.Text)
	return s, reply.Text, nil
}

func (o *Orchestrator) loadMemories(ctx context.Context, s State) (State, error) {
	rows, err := o.store.GetRecentForSymbol(ctx, s.Symbol, time.Now(), 5)
	if err != nil {
		return s, err
	}
	for _, row := range rows {
		note := MemoryNote{
			TradeDate: row.Decision.TradeDate,
			Token:     string(row.Decision.Token),
			Size:      row.Decision.Size,
			Rationale: row.Decision.Rationale,
		}
		if row.Outcome != nil {
			note.Outcome = fmt.Sprintf("%s return=%.4f drawdown=%.4f",
				row.Outcome.Label, row.Outcome.RealizedReturn, row.Outcome.MaxDrawdown)
		}
		s.Metadata.ManagerMemories = append(s.Metadata.ManagerMemories, note)
		s.Metadata.TraderMemories = append(s.Metadata.TraderMemories, note)
	}
	return s, nil
}

// loadMarket assembles the freshest cached snapshot for the symbol. Lenient
// reads keep the analyst working off slightly stale data instead of nothing.
func (o *Orchestrator) loadMarket(ctx context.Context, symbol string) *types.MarketData {
	key := func(kind cache.Kind) cache.Key {
		return cache.Key{Namespace: marketdata.Namespace, Symbol: symbol, Kind: kind}
	}

	var ticker types.TickerSnapshot
	hit, err := o.cache.GetLenient(ctx, key(cache.KindTicker), &ticker)
	if err != nil {
		return nil
	}
	md := &types.MarketData{Symbol: symbol, Ticker: &ticker, ObservedAt: hit.WrittenAt}

	var book types.OrderBookSnapshot
	if _, err := o.cache.GetLenient(ctx, key(cache.KindOrderBook), &book); err == nil {
		md.OrderBook = &book
	}
	var funding types.FundingRate
	if _, err := o.cache.GetLenient(ctx, key(cache.KindFunding), &funding); err == nil {
		md.Funding = &funding
	}
	var s15 types.CandleSeries
	if _, err := o.cache.GetLenient(ctx, key(cache.KindCandles15m), &s15); err == nil {
		md.Series15m = &s15
	}
	var s1h types.CandleSeries
	if _, err := o.cache.GetLenient(ctx, key(cache.KindCandles1h), &s1h); err == nil {
		md.Series1h = &s1h
	}
	var ind types.Indicators
	if _, err := o.cache.GetLenient(ctx, key(cache.KindIndicators), &ind); err == nil {
		md.Indicators = &ind
	}
	return md
}

type analystResult struct {
	report string
	log    []LogEntry
	tokens int
	err    error
}

// runAnalysts fans the enabled analysts out concurrently, then merges their
// output back into the state in canonical order.
func (o *Orchestrator) runAnalysts(ctx context.Context, s State) (State, error) {
	results := make(map[string]*analystResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	runOne := func(id, system, user string) {
		defer wg.Done()
		reply, err := o.chat.Complete(ctx, s.ModelID, system, user)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			results[id] = &analystResult{err: err}
			return
		}
		results[id] = &analystResult{
			report: reply.Text,
			log:    []LogEntry{{Persona: "analyst_" + id, Text: reply.Text, At: time.Now()}},
			tokens: reply.TokensUsed,
		}
	}

	for _, id := range analystOrder {
		if !s.analystEnabled(id) {
			continue
		}
		wg.Add(1)
		switch id {
		case AnalystFundamental:
			go runOne(id, systemFundamentalAnalyst, fundamentalAnalystPrompt(s))
		case AnalystMarket:
			md := o.loadMarket(ctx, s.Symbol)
			go runOne(id, systemMarketAnalyst, marketAnalystPrompt(s, md))
		case AnalystNews:
			digest := types.NewsDigest{Symbol: s.Symbol}
			if o.news != nil {
				digest, _ = o.news.GetDigest(ctx, s.Symbol)
			}
			go runOne(id, systemNewsAnalyst, newsAnalystPrompt(s, digest))
		case AnalystSocial:
			go runOne(id, systemSocialAnalyst, socialAnalystPrompt(s))
		}
	}
	wg.Wait()

	var firstErr error
	for _, id := range analystOrder {
		res, ok := results[id]
		if !ok {
			continue
		}
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("analyst %s: %w", id, res.err)
			}
			logger.ErrorWithErr(ctx, "Analyst failed", res.err, "analyst", id, "symbol", s.Symbol)
			continue
		}
		s.TokensUsed += res.tokens
		s.ConversationLog = append(s.ConversationLog, res.log...)
		switch id {
		case AnalystFundamental:
			s.Reports.Fundamental = res.report
		case AnalystMarket:
			s.Reports.Market = res.report
		case AnalystNews:
			s.Reports.News = res.report
		case AnalystSocial:
			s.Reports.Social = res.report
		}
	}
	return s, firstErr
}

// investmentDebate alternates Bear then Bull for the configured rounds. The
// guard is the round counter, never the content.
func (o *Orchestrator) investmentDebate(ctx context.Context, s State) (State, error) {
	for s.Metadata.InvestRound < o.investRounds {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		var text string
		var err error
		s, text, err = o.call(ctx, s, "bear", systemBear, debaterPrompt(s, s.Debate.Bull))
		if err != nil {
			return s, fmt.Errorf("bear: %w", err)
		}
		s.Debate.Bear = text
		s.Debate.Investment += fmt.Sprintf("Bear (round %d): %s\n\n", s.Metadata.InvestRound+1, text)

		s, text, err = o.call(ctx, s, "bull", systemBull, debaterPrompt(s, s.Debate.Bear))
		if err != nil {
			return s, fmt.Errorf("bull: %w", err)
		}
		s.Debate.Bull = text
		s.Debate.Investment += fmt.Sprintf("Bull (round %d): %s\n\n", s.Metadata.InvestRound+1, text)

		s.Metadata.InvestRound++
	}
	return s, nil
}

func (o *Orchestrator) researchManager(ctx context.Context, s State) (State, error) {
	s, text, err := o.call(ctx, s, "research_manager", systemResearchManager, researchManagerPrompt(s))
	if err != nil {
		return s, err
	}
	s.InvestmentPlan = text
	return s, nil
}

func (o *Orchestrator) trader(ctx context.Context, s State) (State, error) {
	s, text, err := o.call(ctx, s, "trader", systemTrader, traderPrompt(s))
	if err != nil {
		return s, err
	}
	s.TraderPlan = text
	return s, nil
}

// riskDebate cycles Aggressive, Conservative, Neutral per round.
func (o *Orchestrator) riskDebate(ctx context.Context, s State) (State, error) {
	voices := []struct {
		persona string
		system  string
		last    func(State) string
		set     func(*State, string)
	}{
		{"aggressive", systemAggressive, func(s State) string { return s.Debate.Neutral },
			func(s *State, t string) { s.Debate.Aggressive = t }},
		{"conservative", systemConservative, func(s State) string { return s.Debate.Aggressive },
			func(s *State, t string) { s.Debate.Conservative = t }},
		{"neutral", systemNeutral, func(s State) string { return s.Debate.Conservative },
			func(s *State, t string) { s.Debate.Neutral = t }},
	}

	for s.Metadata.RiskRound < o.riskRounds {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		for _, v := range voices {
			var text string
			var err error
			s, text, err = o.call(ctx, s, v.persona, v.system, riskDebaterPrompt(s, v.last(s)))
			if err != nil {
				return s, fmt.Errorf("%s: %w", v.persona, err)
			}
			v.set(&s, text)
			s.Debate.Risk += fmt.Sprintf("%s (round %d): %s\n\n", v.persona, s.Metadata.RiskRound+1, text)
		}
		s.Metadata.RiskRound++
	}
	return s, nil
}

func (o *Orchestrator) riskJudge(ctx context.Context, s State) (State, error) {
	user := riskJudgePrompt(s)
	s, text, err := o.call(ctx, s, "risk_judge", systemRiskJudge, user)
	if err != nil {
		return s, err
	}

	raw := parseDecision(text, o.maxPositionSize)
	now := time.Now()
	s.RawFinal = text
	s.PromptHash = promptHash(systemRiskJudge, user)
	s.FinalDecision = &types.Decision{
		RunID:      s.RunID,
		Symbol:     s.Symbol,
		TradeDate:  s.TradeDate,
		Token:      types.DecisionToken(raw.Action),
		Confidence: raw.Confidence,
		Size:       raw.Size,
		Leverage:   raw.Leverage,
		Rationale:  raw.Rationale,
		RiskPlan:   raw.RiskPlan,
		ModelID:    s.ModelID,
		Analysts:   s.EnabledAnalysts,
		RawText:    text,
		PromptHash: s.PromptHash,
		CreatedAt:  now,
	}
	return s, nil
}
