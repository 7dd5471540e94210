package platform

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"llm-autotrader/internal/cache"
	"llm-autotrader/internal/marketdata"
	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/types"
)

func pricesPlatform(t *testing.T) (*Platform, cache.Store) {
	t.Helper()
	snapshots := cache.NewMemoryStore()
	t.Cleanup(func() { snapshots.Close() })
	return New(nil, nil, nil, snapshots, nil, nil), snapshots
}

func putTicker(t *testing.T, store cache.Store, symbol string, price float64) {
	t.Helper()
	key := cache.Key{Namespace: marketdata.Namespace, Symbol: symbol, Kind: cache.KindTicker}
	err := store.Put(context.Background(), key, types.TickerSnapshot{
		Symbol: symbol, LastPrice: price, ChangePct24: -1.1, ObservedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestGetPricesServesCachedQuotes(t *testing.T) {
	p, store := pricesPlatform(t)
	putTicker(t, store, "RELIANCE", 2850.40)

	quotes := p.GetPrices(context.Background(), []string{"reliance", "TCS"})

	q, ok := quotes["RELIANCE"]
	if !ok {
		t.Fatal("Expected a quote for the cached symbol")
	}
	if q.Price != 2850.40 {
		t.Errorf("Expected price 2850.40, got %f", q.Price)
	}
	if q.Stale {
		t.Error("Fresh quote should not be stale")
	}
	// Symbols with no snapshot are omitted, not zero-filled.
	if _, ok := quotes["TCS"]; ok {
		t.Error("Uncached symbol should be omitted")
	}
}

func TestGetDecisionKeyedByRunID(t *testing.T) {
	store, err := persist.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("persist.Open failed: %v", err)
	}
	defer store.Close()

	now := time.Now()
	runID := uuid.NewString()
	d := types.Decision{
		RunID: runID, Symbol: "RELIANCE", TradeDate: now.UTC().Format("2006-01-02"),
		Token: types.TokenBuy, Confidence: 0.6, Size: 0.2, Leverage: 1,
		ModelID: "gpt-4o-mini", CreatedAt: now,
	}
	if _, err := store.FinalizeRun(context.Background(), persist.RunRecord{
		RunID: runID, Symbol: "RELIANCE", ModelID: d.ModelID,
		Analysts: []string{"market"}, OrchestratorVersion: "1.0",
		LogsRef: runID, CreatedAt: now,
	}, d); err != nil {
		t.Fatalf("FinalizeRun failed: %v", err)
	}

	p := New(nil, nil, nil, nil, store, nil)

	detail, err := p.GetDecision(context.Background(), runID)
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if detail.Decision.Decision.RunID != runID {
		t.Errorf("Expected run id %s, got %s", runID, detail.Decision.Decision.RunID)
	}
	if detail.Decision.Decision.Token != types.TokenBuy {
		t.Errorf("Expected BUY, got %s", detail.Decision.Decision.Token)
	}
}

func TestListDecisionsPaging(t *testing.T) {
	store, err := persist.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("persist.Open failed: %v", err)
	}
	defer store.Close()

	now := time.Now()
	for i := 0; i < 25; i++ {
		runID := uuid.NewString()
		at := now.Add(time.Duration(i) * time.Second)
		d := types.Decision{
			RunID: runID, Symbol: "RELIANCE", TradeDate: at.UTC().Format("2006-01-02"),
			Token: types.TokenHold, Leverage: 1, ModelID: "gpt-4o-mini", CreatedAt: at,
		}
		if _, err := store.FinalizeRun(context.Background(), persist.RunRecord{
			RunID: runID, Symbol: "RELIANCE", ModelID: d.ModelID,
			Analysts: []string{"market"}, OrchestratorVersion: "1.0",
			LogsRef: runID, CreatedAt: at,
		}, d); err != nil {
			t.Fatalf("FinalizeRun failed: %v", err)
		}
	}

	p := New(nil, nil, nil, nil, store, nil)

	// Limit caps at 20 and a full page carries a cursor.
	page, err := p.ListDecisions(context.Background(), "RELIANCE", 0, 100)
	if err != nil {
		t.Fatalf("ListDecisions failed: %v", err)
	}
	if len(page.Items) != 20 {
		t.Fatalf("Expected 20 items, got %d", len(page.Items))
	}
	if page.NextCursor == 0 {
		t.Fatal("Expected a next cursor on a full page")
	}

	rest, err := p.ListDecisions(context.Background(), "RELIANCE", page.NextCursor, 20)
	if err != nil {
		t.Fatalf("ListDecisions page 2 failed: %v", err)
	}
	if len(rest.Items) != 5 {
		t.Errorf("Expected 5 remaining items, got %d", len(rest.Items))
	}
	if rest.NextCursor != 0 {
		t.Error("Partial page should not carry a cursor")
	}
}
