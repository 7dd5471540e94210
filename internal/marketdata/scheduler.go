package marketdata

import (
	"context"
	"sync"
	"time"

	"llm-autotrader/internal/bus"
	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/indicator"
	"llm-autotrader/internal/interfaces"
	"llm-autotrader/internal/logger"
	"llm-autotrader/internal/metrics"
	"llm-autotrader/internal/trace"
	"llm-autotrader/internal/types"
)

// Namespace is the cache namespace owned by this scheduler. It has sole
// write authority over it.
const Namespace = "market"

const (
	backoffStep = 1.5
	backoffCap  = 4.0
)

// TickHook runs after a symbol's refresh inside a tick. The simulated broker
// uses it to cross queued limit orders against fresh prices.
type TickHook func(ctx context.Context, symbol string)

// Scheduler polls the exchange on a fixed cadence and refreshes the shared
// snapshot cache, fanning an aggregated view out to market subscribers.
type Scheduler struct {
	client      interfaces.ExchangeClient
	store       cache.Store
	broadcaster *bus.MarketBroadcaster
	metrics     *metrics.Recorder
	symbols     []string
	interval    time.Duration
	stepTimeout time.Duration
	depth       int
	hook        TickHook

	mu       sync.Mutex
	backoffs map[string]float64
	skipTill map[string]time.Time
}

type Params struct {
	Client      interfaces.ExchangeClient
	Store       cache.Store
	Broadcaster *bus.MarketBroadcaster
	Metrics     *metrics.Recorder
	Symbols     []string
	Interval    time.Duration
	StepTimeout time.Duration
	Depth       int
	Hook        TickHook
}

func New(p Params) *Scheduler {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	if p.StepTimeout <= 0 {
		p.StepTimeout = 3 * time.Second
	}
	if p.Depth <= 0 {
		p.Depth = 40
	}
	symbols := make([]string, len(p.Symbols))
	for i, s := range p.Symbols {
		symbols[i] = types.NormalizeSymbol(s)
	}
	return &Scheduler{
		client:      p.Client,
		store:       p.Store,
		broadcaster: p.Broadcaster,
		metrics:     p.Metrics,
		symbols:     symbols,
		interval:    p.Interval,
		stepTimeout: p.StepTimeout,
		depth:       p.Depth,
		hook:        p.Hook,
		backoffs:    make(map[string]float64),
		skipTill:    make(map[string]time.Time),
	}
}

// Run drives the polling loop until ctx is cancelled. Cancellation waits for
// at most the in-flight tick to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info(ctx, "Market data scheduler started",
		"symbols", s.symbols,
		"interval", s.interval.String(),
	)

	// Prime the cache before the first ticker fires.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Market data scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick fans refresh work out per symbol and publishes what completed before
// the tick deadline. Per-symbol work is sequential; symbols run concurrently.
func (s *Scheduler) tick(ctx context.Context) {
	deadline := s.interval - 500*time.Millisecond
	if deadline <= 0 {
		deadline = s.interval
	}
	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	tickCtx, span := trace.StartSpan(tickCtx, "marketdata.tick")
	defer span.End()

	var wg sync.WaitGroup
	for _, symbol := range s.symbols {
		if s.inBackoff(symbol) {
			continue
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			s.refreshSymbol(tickCtx, symbol)
			if s.hook != nil {
				s.hook(tickCtx, symbol)
			}
		}(symbol)
	}
	wg.Wait()
}

func (s *Scheduler) inBackoff(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.skipTill[symbol])
}

// noteRateLimit widens the symbol's next-tick delay multiplicatively.
func (s *Scheduler) noteRateLimit(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.backoffs[symbol]
	if m < 1 {
		m = 1
	}
	m *= backoffStep
	if m > backoffCap {
		m = backoffCap
	}
	s.backoffs[symbol] = m
	s.skipTill[symbol] = time.Now().Add(time.Duration(float64(s.interval) * (m - 1)))
}

func (s *Scheduler) noteSuccess(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backoffs, symbol)
	delete(s.skipTill, symbol)
}

// refreshSymbol executes the per-symbol step list. A ticker failure skips all
// downstream steps for this tick; stale cache values keep serving until their
// TTLs expire. A rate limit on any step leaves the symbol in backoff even
// when the remaining steps succeed.
func (s *Scheduler) refreshSymbol(ctx context.Context, symbol string) {
	now := time.Now()
	limited := false

	ticker, err := step(ctx, s.stepTimeout, func(ctx context.Context) (types.TickerSnapshot, error) {
		return s.client.FetchTicker(ctx, symbol)
	})
	if err != nil {
		s.noteFailure(ctx, symbol, "ticker", err)
		return
	}
	s.put(ctx, symbol, cache.KindTicker, ticker)
	if s.metrics != nil {
		s.metrics.RecordLastPrice(symbol, ticker.LastPrice)
	}

	md := types.MarketData{Symbol: symbol, Ticker: &ticker, ObservedAt: now}

	book, err := step(ctx, s.stepTimeout, func(ctx context.Context) (types.OrderBookSnapshot, error) {
		return s.client.FetchOrderBook(ctx, symbol, s.depth)
	})
	if err != nil {
		limited = s.noteFailure(ctx, symbol, "orderbook", err) || limited
	} else {
		s.put(ctx, symbol, cache.KindOrderBook, book)
		md.OrderBook = &book
	}

	funding, err := step(ctx, s.stepTimeout, func(ctx context.Context) (types.FundingRate, error) {
		return s.client.FetchFundingRate(ctx, symbol)
	})
	if err != nil {
		limited = s.noteFailure(ctx, symbol, "funding", err) || limited
	} else {
		s.put(ctx, symbol, cache.KindFunding, funding)
		md.Funding = &funding
	}

	s15, err := step(ctx, s.stepTimeout, func(ctx context.Context) (types.CandleSeries, error) {
		return s.client.FetchCandles(ctx, symbol, types.Timeframe15m, types.Timeframe15m.CandleCount())
	})
	if err != nil {
		limited = s.noteFailure(ctx, symbol, "candles_15m", err) || limited
	} else {
		s.put(ctx, symbol, cache.KindCandles15m, s15)
		md.Series15m = &s15
	}

	s1h, err := step(ctx, s.stepTimeout, func(ctx context.Context) (types.CandleSeries, error) {
		return s.client.FetchCandles(ctx, symbol, types.Timeframe1h, types.Timeframe1h.CandleCount())
	})
	if err != nil {
		limited = s.noteFailure(ctx, symbol, "candles_1h", err) || limited
	} else {
		s.put(ctx, symbol, cache.KindCandles1h, s1h)
		md.Series1h = &s1h
	}

	if md.Series15m != nil || md.Series1h != nil {
		ind := indicator.Compute(md.Series15m, md.Series1h, time.Now())
		s.put(ctx, symbol, cache.KindIndicators, ind)
		md.Indicators = &ind
	}

	if !limited {
		s.noteSuccess(symbol)
	}
	if s.metrics != nil {
		s.metrics.RecordTick("market_data", "ok")
	}
	if s.broadcaster != nil {
		s.broadcaster.Publish(md)
	}
}

// noteFailure reports whether the error was a rate limit and put the symbol
// into backoff.
func (s *Scheduler) noteFailure(ctx context.Context, symbol, step string, err error) bool {
	limited := errs.KindOf(err) == errs.RateLimited
	if limited {
		s.noteRateLimit(symbol)
	}
	if s.metrics != nil {
		s.metrics.RecordTick("market_data", "error")
	}
	logger.Warn(ctx, "Market data step failed", "symbol", symbol, "step", step, "error", err)
	return limited
}

// step runs one fetch under the per-step timeout, mapping a deadline hit to
// Transient so callers treat it like any other flaky exchange call.
func step[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := fn(stepCtx)
	if err != nil && stepCtx.Err() == context.DeadlineExceeded {
		return out, errs.Wrap(errs.Transient, "step deadline exceeded", err)
	}
	return out, err
}

func (s *Scheduler) put(ctx context.Context, symbol string, kind cache.Kind, value any) {
	key := cache.Key{Namespace: Namespace, Symbol: symbol, Kind: kind}
	if err := s.store.Put(ctx, key, value); err != nil {
		logger.ErrorWithErr(ctx, "Cache write failed", err, "key", key.String())
		if s.metrics != nil {
			s.metrics.RecordCacheOp(string(kind), "write_error")
		}
		return
	}
	if s.metrics != nil {
		s.metrics.RecordCacheOp(string(kind), "write")
	}
}
