package marketdata

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"llm-autotrader/internal/bus"
	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/errs"
	exchsim "llm-autotrader/internal/exchange/sim"
	"llm-autotrader/internal/types"
)

func TestTickRefreshesCacheAndBroadcasts(t *testing.T) {
	client := exchsim.New(1)
	client.SeedPrice("RELIANCE", 2850.40, -1.25)

	store := cache.NewMemoryStore()
	defer store.Close()
	feed := bus.NewMarketBroadcaster()
	sub, unsub := feed.Subscribe()
	defer unsub()

	var hooked atomic.Int32
	s := New(Params{
		Client:      client,
		Store:       store,
		Broadcaster: feed,
		Symbols:     []string{"RELIANCE"},
		Interval:    5 * time.Second,
		StepTimeout: 3 * time.Second,
		Depth:       40,
		Hook: func(ctx context.Context, symbol string) {
			hooked.Add(1)
		},
	})

	s.tick(context.Background())

	var ticker types.TickerSnapshot
	key := cache.Key{Namespace: Namespace, Symbol: "RELIANCE", Kind: cache.KindTicker}
	if _, err := store.Get(context.Background(), key, &ticker); err != nil {
		t.Fatalf("Ticker not cached: %v", err)
	}
	if ticker.LastPrice != 2850.40 {
		t.Errorf("Expected seeded price 2850.40, got %f", ticker.LastPrice)
	}
	if ticker.ChangePct24 != -1.25 {
		t.Errorf("Expected seeded change -1.25, got %f", ticker.ChangePct24)
	}

	for _, kind := range []cache.Kind{
		cache.KindOrderBook, cache.KindFunding,
		cache.KindCandles15m, cache.KindCandles1h, cache.KindIndicators,
	} {
		k := cache.Key{Namespace: Namespace, Symbol: "RELIANCE", Kind: kind}
		var raw map[string]any
		if _, err := store.Get(context.Background(), k, &raw); err != nil {
			t.Errorf("Kind %s not cached after tick: %v", kind, err)
		}
	}

	select {
	case md := <-sub:
		if md.Symbol != "RELIANCE" {
			t.Errorf("Broadcast for wrong symbol %s", md.Symbol)
		}
		if md.Ticker == nil || md.Ticker.LastPrice != 2850.40 {
			t.Error("Broadcast missing ticker")
		}
		if md.Indicators == nil {
			t.Error("Broadcast missing indicators")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("No market data broadcast after tick")
	}

	if hooked.Load() != 1 {
		t.Errorf("Expected tick hook once, got %d", hooked.Load())
	}
}

// rateLimitedClient fails the ticker step with RateLimited and counts calls.
type rateLimitedClient struct {
	*exchsim.Client
	tickerCalls atomic.Int32
}

func (c *rateLimitedClient) FetchTicker(ctx context.Context, symbol string) (types.TickerSnapshot, error) {
	c.tickerCalls.Add(1)
	return types.TickerSnapshot{}, errs.New(errs.RateLimited, "throttled", "simulated throttle")
}

func TestRateLimitBacksOffSymbol(t *testing.T) {
	client := &rateLimitedClient{Client: exchsim.New(1)}
	store := cache.NewMemoryStore()
	defer store.Close()

	s := New(Params{
		Client:      client,
		Store:       store,
		Symbols:     []string{"RELIANCE"},
		Interval:    5 * time.Second,
		StepTimeout: time.Second,
	})

	s.tick(context.Background())
	if client.tickerCalls.Load() != 1 {
		t.Fatalf("Expected 1 ticker call, got %d", client.tickerCalls.Load())
	}
	if !s.inBackoff("RELIANCE") {
		t.Fatal("Expected symbol in backoff after rate limit")
	}

	// Backed-off symbols are skipped entirely on the next tick.
	s.tick(context.Background())
	if client.tickerCalls.Load() != 1 {
		t.Errorf("Backed-off symbol was polled again, calls=%d", client.tickerCalls.Load())
	}
}

// throttledBookClient rate-limits the order book step while every other
// step succeeds.
type throttledBookClient struct {
	*exchsim.Client
}

func (c *throttledBookClient) FetchOrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	return types.OrderBookSnapshot{}, errs.New(errs.RateLimited, "throttled", "simulated throttle")
}

func TestRateLimitOnDownstreamStepKeepsBackoff(t *testing.T) {
	client := &throttledBookClient{Client: exchsim.New(1)}
	store := cache.NewMemoryStore()
	defer store.Close()

	s := New(Params{
		Client:      client,
		Store:       store,
		Symbols:     []string{"RELIANCE"},
		Interval:    5 * time.Second,
		StepTimeout: time.Second,
	})

	s.refreshSymbol(context.Background(), "RELIANCE")

	// The ticker succeeded and was cached, but the throttled order book step
	// must still leave the symbol backed off for the next tick.
	var ticker types.TickerSnapshot
	key := cache.Key{Namespace: Namespace, Symbol: "RELIANCE", Kind: cache.KindTicker}
	if _, err := store.Get(context.Background(), key, &ticker); err != nil {
		t.Fatalf("Ticker not cached: %v", err)
	}
	if !s.inBackoff("RELIANCE") {
		t.Error("Expected symbol in backoff after rate-limited order book step")
	}
}

func TestBackoffMultiplierCaps(t *testing.T) {
	s := New(Params{
		Client:   exchsim.New(1),
		Store:    cache.NewMemoryStore(),
		Symbols:  []string{"RELIANCE"},
		Interval: 5 * time.Second,
	})
	defer s.store.Close()

	for i := 0; i < 10; i++ {
		s.noteRateLimit("RELIANCE")
	}
	s.mu.Lock()
	m := s.backoffs["RELIANCE"]
	s.mu.Unlock()
	if m != backoffCap {
		t.Errorf("Expected multiplier capped at %f, got %f", backoffCap, m)
	}

	s.noteSuccess("RELIANCE")
	if s.inBackoff("RELIANCE") {
		t.Error("Success must clear the backoff state")
	}
}

func TestTickerFailureSkipsDownstreamSteps(t *testing.T) {
	client := &rateLimitedClient{Client: exchsim.New(1)}
	store := cache.NewMemoryStore()
	defer store.Close()

	s := New(Params{
		Client:      client,
		Store:       store,
		Symbols:     []string{"RELIANCE"},
		Interval:    5 * time.Second,
		StepTimeout: time.Second,
	})
	s.refreshSymbol(context.Background(), "RELIANCE")

	for _, kind := range []cache.Kind{cache.KindTicker, cache.KindOrderBook, cache.KindCandles15m} {
		k := cache.Key{Namespace: Namespace, Symbol: "RELIANCE", Kind: kind}
		var raw map[string]any
		if _, err := store.Get(context.Background(), k, &raw); err != cache.ErrMiss {
			t.Errorf("Kind %s should be absent after ticker failure, got %v", kind, err)
		}
	}
}
