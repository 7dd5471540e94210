package eod

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"llm-autotrader/internal/persist"
	"llm-autotrader/internal/types"
)

// Summarizer writes a per-symbol CSV rollup of one trade date's journaled
// decisions. The CSV doubles as the marker that the day was already closed
// out, so ShouldRunNow stays idempotent across restarts.
type Summarizer struct {
	store *persist.Store
	dir   string
}

type aggRow struct {
	Symbol        string
	Decisions     int
	Buy           int
	Sell          int
	Hold          int
	Abstain       int
	ConfidenceSum float64
	BuySize       float64
	SellSize      float64
	Labeled       int
}

func New(store *persist.Store, dir string) *Summarizer {
	if dir == "" {
		if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
			dir = filepath.Join(v, "eod")
		} else {
			dir = filepath.Join("logs", "eod")
		}
	}
	return &Summarizer{store: store, dir: dir}
}

func istNow() time.Time { return time.Now().In(time.FixedZone("IST", 19800)) }

func (s *Summarizer) csvPath(date string) string {
	return filepath.Join(s.dir, date+".csv")
}

// SummarizeDay rolls up every decision journaled for date (YYYY-MM-DD) into
// dir/<date>.csv. A day with no decisions produces no file. Returns the
// written path, or "" when there was nothing to write.
func (s *Summarizer) SummarizeDay(ctx context.Context, date string) (string, error) {
	rows, err := s.store.ListByTradeDate(ctx, date)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	aggs := map[string]*aggRow{}
	for _, r := range rows {
		a := aggs[r.Decision.Symbol]
		if a == nil {
			a = &aggRow{Symbol: r.Decision.Symbol}
			aggs[r.Decision.Symbol] = a
		}
		a.Decisions++
		a.ConfidenceSum += r.Decision.Confidence
		switch r.Decision.Token {
		case types.TokenBuy:
			a.Buy++
			a.BuySize += r.Decision.Size
		case types.TokenSell:
			a.Sell++
			a.SellSize += r.Decision.Size
		case types.TokenAbstain:
			a.Abstain++
		default:
			a.Hold++
		}
		if r.Outcome != nil {
			a.Labeled++
		}
	}

	symbols := make([]string, 0, len(aggs))
	for sym := range aggs {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	outPath := s.csvPath(date)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"symbol", "decisions", "buy", "sell", "hold", "abstain",
		"avg_confidence", "buy_size", "sell_size", "labeled"})

	var total aggRow
	for _, sym := range symbols {
		a := aggs[sym]
		_ = w.Write(csvRow(a))
		total.Decisions += a.Decisions
		total.Buy += a.Buy
		total.Sell += a.Sell
		total.Hold += a.Hold
		total.Abstain += a.Abstain
		total.ConfidenceSum += a.ConfidenceSum
		total.BuySize += a.BuySize
		total.SellSize += a.SellSize
		total.Labeled += a.Labeled
	}
	total.Symbol = "TOTAL"
	_ = w.Write(csvRow(&total))
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func csvRow(a *aggRow) []string {
	avg := 0.0
	if a.Decisions > 0 {
		avg = a.ConfidenceSum / float64(a.Decisions)
	}
	return []string{
		a.Symbol,
		fmt.Sprintf("%d", a.Decisions),
		fmt.Sprintf("%d", a.Buy),
		fmt.Sprintf("%d", a.Sell),
		fmt.Sprintf("%d", a.Hold),
		fmt.Sprintf("%d", a.Abstain),
		fmt.Sprintf("%.3f", avg),
		fmt.Sprintf("%.4f", a.BuySize),
		fmt.Sprintf("%.4f", a.SellSize),
		fmt.Sprintf("%d", a.Labeled),
	}
}

// SummarizeToday closes out the current IST trade date.
func (s *Summarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, istNow().Format("2006-01-02"))
}

// ShouldRunNow reports whether today's summary is due: past the 15:40 IST
// market close and no CSV written yet.
func (s *Summarizer) ShouldRunNow() bool {
	now := istNow()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 15, 40, 0, 0, now.Location())
	if now.Before(cutoff) {
		return false
	}
	_, err := os.Stat(s.csvPath(now.Format("2006-01-02")))
	return os.IsNotExist(err)
}
