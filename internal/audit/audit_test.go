package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAppendOrderWritesDailyJSONL(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	entries := []OrderEntry{
		{Broker: "simulator", Symbol: "RELIANCE", Side: "buy", Kind: "market", Qty: 10, Price: 2850, OK: true},
		{Broker: "simulator", Symbol: "TCS", Side: "sell", Kind: "limit", Qty: 5, OK: false, Error: "rejected"},
	}
	for _, e := range entries {
		if err := l.AppendOrder(e); err != nil {
			t.Fatalf("AppendOrder failed: %v", err)
		}
	}

	day := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, "orders", day+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected daily file at %s: %v", path, err)
	}
	defer f.Close()

	var lines []OrderEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e OrderEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("Bad JSONL line: %v", err)
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].Symbol != "RELIANCE" || lines[1].Symbol != "TCS" {
		t.Error("Lines out of order or mangled")
	}
	if lines[0].Time == "" {
		t.Error("AppendOrder should stamp the entry time")
	}
}

func TestAppendDecisionSeparateSubtree(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	if err := l.AppendDecision(DecisionEntry{
		RunID: "run-1", Symbol: "RELIANCE", Token: "BUY", Confidence: 0.72, Size: 0.25, ModelID: "gpt-4o-mini",
	}); err != nil {
		t.Fatalf("AppendDecision failed: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	if _, err := os.Stat(filepath.Join(dir, "decisions", day+".jsonl")); err != nil {
		t.Errorf("Expected decisions subtree file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "orders", day+".jsonl")); !os.IsNotExist(err) {
		t.Error("Decision entries must not land in the orders subtree")
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	old := filepath.Join(dir, "orders", "2020-01-01.jsonl")
	if err := os.MkdirAll(filepath.Dir(old), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(old, []byte(`{"symbol":"X"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stale := time.Now().AddDate(0, 0, -40)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	if err := l.AppendOrder(OrderEntry{Symbol: "FRESH", OK: true}); err != nil {
		t.Fatal(err)
	}

	if err := l.CompressOlder(30); err != nil {
		t.Fatalf("CompressOlder failed: %v", err)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Old file should be removed after compression")
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("Expected gzip archive: %v", err)
	}

	day := time.Now().UTC().Format("2006-01-02")
	if _, err := os.Stat(filepath.Join(dir, "orders", day+".jsonl")); err != nil {
		t.Errorf("Fresh file must survive compression: %v", err)
	}

	// Zero retention disables compression.
	if err := l.CompressOlder(0); err != nil {
		t.Fatalf("CompressOlder(0) failed: %v", err)
	}
}
