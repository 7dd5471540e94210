package eod

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/types"
)

func seedDecision(t *testing.T, store *persist.Store, symbol string, token types.DecisionToken, size float64, at time.Time) int64 {
	t.Helper()
	runID := uuid.NewString()
	d := types.Decision{
		RunID:      runID,
		Symbol:     symbol,
		TradeDate:  at.UTC().Format("2006-01-02"),
		Token:      token,
		Confidence: 0.6,
		Size:       size,
		Leverage:   1,
		Rationale:  "test",
		ModelID:    "gpt-4o-mini",
		CreatedAt:  at,
	}
	id, err := store.FinalizeRun(context.Background(), persist.RunRecord{
		RunID:               runID,
		Symbol:              symbol,
		ModelID:             d.ModelID,
		Analysts:            []string{"market"},
		OrchestratorVersion: "1.0",
		LogsRef:             runID,
		CreatedAt:           at,
	}, d)
	if err != nil {
		t.Fatalf("FinalizeRun failed: %v", err)
	}
	return id
}

func TestSummarizeDay(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("persist.Open failed: %v", err)
	}
	defer store.Close()

	now := time.Now()
	date := now.UTC().Format("2006-01-02")
	seedDecision(t, store, "RELIANCE", types.TokenBuy, 0.25, now)
	seedDecision(t, store, "RELIANCE", types.TokenHold, 0, now)
	id := seedDecision(t, store, "TCS", types.TokenSell, 0.10, now)
	if err := store.InsertOutcome(context.Background(), types.Outcome{
		DecisionID: id, Horizon: "1d", RealizedReturn: 0.01, Label: "win",
	}); err != nil {
		t.Fatalf("InsertOutcome failed: %v", err)
	}

	s := New(store, filepath.Join(dir, "eod"))
	path, err := s.SummarizeDay(context.Background(), date)
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path == "" {
		t.Fatal("Expected a CSV path")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open CSV failed: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Read CSV failed: %v", err)
	}

	// Header, RELIANCE, TCS, TOTAL.
	if len(rows) != 4 {
		t.Fatalf("Expected 4 CSV rows, got %d", len(rows))
	}
	if rows[1][0] != "RELIANCE" || rows[2][0] != "TCS" || rows[3][0] != "TOTAL" {
		t.Errorf("Unexpected row order: %v %v %v", rows[1][0], rows[2][0], rows[3][0])
	}
	// RELIANCE: 2 decisions, 1 buy, 1 hold.
	if rows[1][1] != "2" || rows[1][2] != "1" || rows[1][4] != "1" {
		t.Errorf("Unexpected RELIANCE aggregates: %v", rows[1])
	}
	// TCS carries the labeled outcome.
	if rows[2][9] != "1" {
		t.Errorf("Expected 1 labeled outcome for TCS, got %s", rows[2][9])
	}
	// TOTAL sums decisions.
	if rows[3][1] != "3" {
		t.Errorf("Expected 3 total decisions, got %s", rows[3][1])
	}
}

func TestSummarizeDayEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := persist.Open(filepath.Join(dir, "journal.db"))
	if err != nil {
		t.Fatalf("persist.Open failed: %v", err)
	}
	defer store.Close()

	s := New(store, filepath.Join(dir, "eod"))
	path, err := s.SummarizeDay(context.Background(), "1999-01-01")
	if err != nil {
		t.Fatalf("SummarizeDay failed: %v", err)
	}
	if path != "" {
		t.Errorf("Expected no file for an empty day, got %s", path)
	}
	if _, err := os.Stat(filepath.Join(dir, "eod", "1999-01-01.csv")); !os.IsNotExist(err) {
		t.Error("No CSV should exist for an empty day")
	}
}
