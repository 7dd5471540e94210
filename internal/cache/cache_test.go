package cache

import (
	"context"
	"testing"
	"time"

	"llm-autotrader/internal/types"
)

func backdate(ms *MemoryStore, key Key, age time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if item, ok := ms.data[key.String()]; ok {
		item.writtenAt = time.Now().Add(-age)
	}
}

func TestMemoryPutGet(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	key := Key{Namespace: "market", Symbol: "RELIANCE", Kind: KindTicker}
	in := types.TickerSnapshot{Symbol: "RELIANCE", LastPrice: 2850.5}
	if err := ms.Put(context.Background(), key, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var out types.TickerSnapshot
	hit, err := ms.Get(context.Background(), key, &out)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if out.LastPrice != 2850.5 {
		t.Errorf("Expected price 2850.5, got %f", out.LastPrice)
	}
	if hit.Stale {
		t.Error("Fresh read should not be stale")
	}
}

func TestMemoryGetMiss(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	var out types.TickerSnapshot
	key := Key{Namespace: "market", Symbol: "TCS", Kind: KindTicker}
	if _, err := ms.Get(context.Background(), key, &out); err != ErrMiss {
		t.Errorf("Expected ErrMiss for absent key, got %v", err)
	}
}

func TestMemoryExpiredReadsLenient(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	key := Key{Namespace: "market", Symbol: "INFY", Kind: KindTicker}
	in := types.TickerSnapshot{Symbol: "INFY", LastPrice: 1500}
	if err := ms.Put(context.Background(), key, in); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Past the 10s ticker TTL but inside the retention window.
	backdate(ms, key, 30*time.Second)

	var out types.TickerSnapshot
	if _, err := ms.Get(context.Background(), key, &out); err != ErrMiss {
		t.Errorf("Expected ErrMiss after TTL, got %v", err)
	}

	hit, err := ms.GetLenient(context.Background(), key, &out)
	if err != nil {
		t.Fatalf("GetLenient failed on retained entry: %v", err)
	}
	if !hit.Stale {
		t.Error("Expected expired entry to be flagged stale")
	}
	if out.LastPrice != 1500 {
		t.Errorf("Expected retained value 1500, got %f", out.LastPrice)
	}
}

func TestMemoryRetentionWindowEnds(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	key := Key{Namespace: "market", Symbol: "INFY", Kind: KindTicker}
	if err := ms.Put(context.Background(), key, types.TickerSnapshot{Symbol: "INFY"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Beyond ttl*retainFactor even stale reads miss.
	backdate(ms, key, KindTicker.TTL()*retainFactor+time.Second)

	var out types.TickerSnapshot
	if _, err := ms.GetLenient(context.Background(), key, &out); err != ErrMiss {
		t.Errorf("Expected ErrMiss beyond retention, got %v", err)
	}
}

func TestMemoryKeysFiltersNamespaceAndExpiry(t *testing.T) {
	ms := NewMemoryStore()
	defer ms.Close()

	ctx := context.Background()
	live := Key{Namespace: "market", Symbol: "A", Kind: KindTicker}
	dead := Key{Namespace: "market", Symbol: "B", Kind: KindTicker}
	other := Key{Namespace: "backtest", Symbol: "C", Kind: KindTicker}
	for _, k := range []Key{live, dead, other} {
		if err := ms.Put(ctx, k, types.TickerSnapshot{Symbol: k.Symbol}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	backdate(ms, dead, 30*time.Second)

	keys, err := ms.Keys(ctx, "market")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 live key in namespace, got %d: %v", len(keys), keys)
	}
	if keys[0] != live.String() {
		t.Errorf("Expected %s, got %s", live.String(), keys[0])
	}
}

func TestKindTTL(t *testing.T) {
	cases := map[Kind]time.Duration{
		KindTicker:     10 * time.Second,
		KindOrderBook:  10 * time.Second,
		KindFunding:    300 * time.Second,
		KindCandles1h:  300 * time.Second,
		KindCandles15m: 60 * time.Second,
		KindIndicators: 60 * time.Second,
	}
	for kind, want := range cases {
		if got := kind.TTL(); got != want {
			t.Errorf("TTL(%s) = %v, want %v", kind, got, want)
		}
	}
}
