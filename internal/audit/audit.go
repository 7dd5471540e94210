package audit

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Log appends JSONL audit entries to daily files. Orders and decisions go to
// separate subtrees so the labeling job can tail decisions alone.
type Log struct {
	mu  sync.Mutex
	dir string
}

type OrderEntry struct {
	Time    string  `json:"time"`
	Broker  string  `json:"broker"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Kind    string  `json:"kind"`
	Qty     float64 `json:"qty"`
	Price   float64 `json:"price,omitempty"`
	OrderID string  `json:"order_id,omitempty"`
	OK      bool    `json:"ok"`
	Error   string  `json:"error,omitempty"`
	Tag     string  `json:"tag,omitempty"`
}

type DecisionEntry struct {
	Time       string  `json:"time"`
	RunID      string  `json:"run_id"`
	Symbol     string  `json:"symbol"`
	Token      string  `json:"token"`
	Confidence float64 `json:"confidence"`
	Size       float64 `json:"size"`
	ModelID    string  `json:"model_id"`
	Rationale  string  `json:"rationale,omitempty"`
}

func New(dir string) *Log {
	if dir == "" {
		if v := os.Getenv("TRADER_AUDIT_DIR"); v != "" {
			dir = v
		} else {
			dir = "audit"
		}
	}
	return &Log{dir: dir}
}

func (l *Log) dailyPath(sub string, t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(l.dir, sub, d+".jsonl")
}

func (l *Log) AppendOrder(e OrderEntry) error {
	now := time.Now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")
	return l.append(l.dailyPath("orders", now), e)
}

func (l *Log) AppendDecision(e DecisionEntry) error {
	now := time.Now().UTC()
	e.Time = now.Format("2006-01-02 15:04:05")
	return l.append(l.dailyPath("decisions", now), e)
}

func (l *Log) append(path string, v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, _ := json.Marshal(v)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips audit files older than retentionDays and removes the
// originals. Zero or negative retention disables compression.
func (l *Log) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			return os.Remove(p)
		}

		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()

		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			return os.Remove(p)
		}
		_ = gw.Close()
		_ = out.Close()
		return nil
	})
}
