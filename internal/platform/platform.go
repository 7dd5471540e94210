package platform

import (
	"context"
	"time"

	"llm-autotrader/internal/bus"
	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/marketdata"
	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/runtime"
	"llm-autotrader/internal/scheduler"
	"llm-autotrader/internal/types"
)

// Platform is the surface collaborators program against. Transport layers
// (HTTP, CLI) sit on top of these operations; everything here is
// transport-agnostic.
type Platform struct {
	sched  *scheduler.Scheduler
	bus    *bus.Bus
	market *bus.MarketBroadcaster
	cache  cache.Store
	store  *persist.Store
	mode   *runtime.Controller
}

func New(sched *scheduler.Scheduler, b *bus.Bus, market *bus.MarketBroadcaster, c cache.Store, store *persist.Store, mode *runtime.Controller) *Platform {
	return &Platform{
		sched:  sched,
		bus:    b,
		market: market,
		cache:  c,
		store:  store,
		mode:   mode,
	}
}

// StartRun validates and launches a decision run, returning its id
// immediately.
func (p *Platform) StartRun(ctx context.Context, opts scheduler.StartOptions) (string, error) {
	return p.sched.StartRun(ctx, opts)
}

func (p *Platform) GetRun(runID string) (types.DecisionRun, error) {
	return p.sched.GetRun(runID)
}

// SubscribeRun replays the run's event log from fromSeq and then tails live
// events until the log seals or ctx ends.
func (p *Platform) SubscribeRun(ctx context.Context, runID string, fromSeq int64) (<-chan bus.Event, error) {
	return p.bus.Subscribe(ctx, runID, fromSeq)
}

func (p *Platform) CancelRun(runID string) bool {
	return p.sched.CancelRun(runID)
}

// GetPrices serves last-known quotes from the cache. Entries older than twice
// the ticker TTL are still returned, flagged stale. Symbols with no cached
// snapshot at all are omitted.
func (p *Platform) GetPrices(ctx context.Context, symbols []string) map[string]types.PriceQuote {
	out := make(map[string]types.PriceQuote, len(symbols))
	staleAfter := 2 * cache.KindTicker.TTL()

	for _, raw := range symbols {
		symbol := types.NormalizeSymbol(raw)
		key := cache.Key{Namespace: marketdata.Namespace, Symbol: symbol, Kind: cache.KindTicker}

		var ticker types.TickerSnapshot
		hit, err := p.cache.GetLenient(ctx, key, &ticker)
		if err != nil {
			continue
		}
		out[symbol] = types.PriceQuote{
			Symbol:      symbol,
			Price:       ticker.LastPrice,
			ChangePct24: ticker.ChangePct24,
			ObservedAt:  hit.WrittenAt,
			Stale:       time.Since(hit.WrittenAt) > staleAfter,
		}
	}
	return out
}

// SubscribeMarket attaches to the per-tick marketUpdate stream. The returned
// cancel func detaches the subscriber.
func (p *Platform) SubscribeMarket() (<-chan types.MarketData, func()) {
	return p.market.Subscribe()
}

func (p *Platform) GetRuntimeMode() types.RuntimeMode {
	return p.mode.Get()
}

func (p *Platform) SetRuntimeMode(ctx context.Context, mode types.RuntimeMode) (runtime.Transition, error) {
	return p.mode.Set(ctx, mode)
}

// DecisionPage is one keyset-paginated slice of the decision journal.
type DecisionPage struct {
	Items      []persist.DecisionRow `json:"items"`
	NextCursor int64                 `json:"next_cursor,omitempty"`
}

// ListDecisions pages newest-first. Pass before=0 to start from the top; the
// returned cursor feeds the next call.
func (p *Platform) ListDecisions(ctx context.Context, symbol string, before int64, limit int) (DecisionPage, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}
	rows, err := p.store.ListDecisions(ctx, symbol, before, limit)
	if err != nil {
		return DecisionPage{}, err
	}
	page := DecisionPage{Items: rows}
	if len(rows) == limit {
		page.NextCursor = rows[len(rows)-1].ID
	}
	return page, nil
}

// DecisionDetail pairs a persisted decision with its run snapshot when the
// run is still in the registry.
type DecisionDetail struct {
	Decision persist.DecisionRow `json:"decision"`
	Run      *types.DecisionRun  `json:"run,omitempty"`
}

// GetDecision resolves a run id to its journaled decision.
func (p *Platform) GetDecision(ctx context.Context, runID string) (DecisionDetail, error) {
	row, err := p.store.GetDecisionByRun(ctx, runID)
	if err != nil {
		return DecisionDetail{}, err
	}
	detail := DecisionDetail{Decision: row}
	if p.sched != nil {
		if run, err := p.sched.GetRun(runID); err == nil {
			detail.Run = &run
		}
	}
	return detail, nil
}
