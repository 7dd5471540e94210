package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"llm-autotrader/internal/errs"
	"llm-autotrader/internal/types"
)

// Store is the append-only decision journal. Runs and decisions are written
// once at finalization and never mutated; outcomes arrive later from an
// independent labeling job.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceError, "open sqlite", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.PersistenceError, "migrate", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  symbol TEXT NOT NULL,
  model_id TEXT NOT NULL,
  analysts TEXT NOT NULL,
  orchestrator_version TEXT NOT NULL,
  logs_ref TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id TEXT NOT NULL REFERENCES runs(run_id),
  symbol TEXT NOT NULL,
  trade_date TEXT NOT NULL,
  decision_token TEXT NOT NULL,
  confidence REAL NOT NULL,
  size REAL NOT NULL,
  leverage INTEGER NOT NULL,
  rationale TEXT NOT NULL,
  risk_plan TEXT NOT NULL,
  payload_json TEXT NOT NULL,
  raw_text TEXT NOT NULL,
  prompt_hash TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol_date ON decisions(symbol, trade_date);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol_created ON decisions(symbol, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id);

CREATE TABLE IF NOT EXISTS outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  decision_id INTEGER NOT NULL REFERENCES decisions(id),
  horizon TEXT NOT NULL,
  realized_return REAL NOT NULL,
  max_drawdown REAL NOT NULL,
  label TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outcomes_decision ON outcomes(decision_id);

CREATE TABLE IF NOT EXISTS runtime_mode (
  id INTEGER PRIMARY KEY CHECK (id = 1),
  mode TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	return err
}

// RunRecord is the runs-table row written at finalization.
type RunRecord struct {
	RunID               string
	Symbol              string
	ModelID             string
	Analysts            []string
	OrchestratorVersion string
	LogsRef             string
	CreatedAt           time.Time
}

// FinalizeRun inserts the run row and its decision row in one transaction.
// The caller publishes the terminal event only after this returns nil, so a
// failed transaction leaves no partial rows behind.
func (s *Store) FinalizeRun(ctx context.Context, run RunRecord, d types.Decision) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "begin finalize tx", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs(run_id, symbol, model_id, analysts, orchestrator_version, logs_ref, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Symbol, run.ModelID, strings.Join(run.Analysts, ","),
		run.OrchestratorVersion, run.LogsRef, run.CreatedAt.UnixMilli())
	if err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "insert run", err)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "marshal decision payload", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO decisions(run_id, symbol, trade_date, decision_token, confidence, size,
			leverage, rationale, risk_plan, payload_json, raw_text, prompt_hash, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.RunID, d.Symbol, d.TradeDate, string(d.Token), d.Confidence, d.Size,
		d.Leverage, d.Rationale, d.RiskPlan, string(payload), d.RawText, d.PromptHash,
		d.CreatedAt.UnixMilli())
	if err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "insert decision", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "decision id", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.Wrap(errs.PersistenceError, "commit finalize tx", err)
	}
	return id, nil
}

// InsertOutcome appends a labeled outcome for an existing decision.
func (s *Store) InsertOutcome(ctx context.Context, o types.Outcome) error {
	created := o.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outcomes(decision_id, horizon, realized_return, max_drawdown, label, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
	`, o.DecisionID, o.Horizon, o.RealizedReturn, o.MaxDrawdown, o.Label, created.UnixMilli())
	if err != nil {
		return errs.Wrap(errs.PersistenceError, "insert outcome", err)
	}
	return nil
}

// DecisionRow is a decisions-table row, optionally joined with its outcome.
type DecisionRow struct {
	ID       int64          `json:"id"`
	Decision types.Decision `json:"decision"`
	Outcome  *types.Outcome `json:"outcome,omitempty"`
}

const decisionCols = `d.id, d.run_id, d.symbol, d.trade_date, d.decision_token, d.confidence,
	d.size, d.leverage, d.rationale, d.risk_plan, d.raw_text, d.prompt_hash, d.created_at`

func scanDecision(scan func(dest ...any) error) (DecisionRow, error) {
	var row DecisionRow
	var token string
	var createdMs int64
	err := scan(&row.ID, &row.Decision.RunID, &row.Decision.Symbol, &row.Decision.TradeDate,
		&token, &row.Decision.Confidence, &row.Decision.Size, &row.Decision.Leverage,
		&row.Decision.Rationale, &row.Decision.RiskPlan, &row.Decision.RawText,
		&row.Decision.PromptHash, &createdMs)
	if err != nil {
		return row, err
	}
	row.Decision.Token = types.DecisionToken(token)
	row.Decision.CreatedAt = time.UnixMilli(createdMs)
	return row, nil
}

// GetRecentForSymbol returns the most recent decisions strictly before
// `before`, newest first, joined with outcomes where present. The strict
// inequality keeps look-ahead out of past-results summaries.
func (s *Store) GetRecentForSymbol(ctx context.Context, symbol string, before time.Time, limit int) ([]DecisionRow, error) {
	if limit <= 0 || limit > 5 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+decisionCols+`,
			o.horizon, o.realized_return, o.max_drawdown, o.label, o.created_at
		FROM decisions d
		LEFT JOIN outcomes o ON o.decision_id = d.id
		WHERE d.symbol = ? AND d.created_at < ?
		ORDER BY d.created_at DESC
		LIMIT ?
	`, types.NormalizeSymbol(symbol), before.UnixMilli(), limit)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceError, "query recent decisions", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var row DecisionRow
		var token string
		var createdMs int64
		var oHorizon, oLabel sql.NullString
		var oReturn, oDrawdown sql.NullFloat64
		var oCreatedMs sql.NullInt64
		err := rows.Scan(&row.ID, &row.Decision.RunID, &row.Decision.Symbol, &row.Decision.TradeDate,
			&token, &row.Decision.Confidence, &row.Decision.Size, &row.Decision.Leverage,
			&row.Decision.Rationale, &row.Decision.RiskPlan, &row.Decision.RawText,
			&row.Decision.PromptHash, &createdMs,
			&oHorizon, &oReturn, &oDrawdown, &oLabel, &oCreatedMs)
		if err != nil {
			return nil, errs.Wrap(errs.PersistenceError, "scan decision", err)
		}
		row.Decision.Token = types.DecisionToken(token)
		row.Decision.CreatedAt = time.UnixMilli(createdMs)
		if oHorizon.Valid {
			row.Outcome = &types.Outcome{
				DecisionID:     row.ID,
				Horizon:        oHorizon.String,
				RealizedReturn: oReturn.Float64,
				MaxDrawdown:    oDrawdown.Float64,
				Label:          oLabel.String,
				CreatedAt:      time.UnixMilli(oCreatedMs.Int64),
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListDecisions pages through the journal newest first with keyset
// pagination. beforeID == 0 starts from the top.
func (s *Store) ListDecisions(ctx context.Context, symbol string, beforeID int64, limit int) ([]DecisionRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if beforeID <= 0 {
		beforeID = int64(^uint64(0) >> 1)
	}

	query := `SELECT ` + decisionCols + ` FROM decisions d WHERE d.id < ?`
	args := []any{beforeID}
	if symbol != "" {
		query += ` AND d.symbol = ?`
		args = append(args, types.NormalizeSymbol(symbol))
	}
	query += ` ORDER BY d.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceError, "query decisions", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		row, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, errs.Wrap(errs.PersistenceError, "scan decision", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ListByTradeDate returns every decision journaled for one trade date in
// insertion order. Used by the end-of-day summary.
func (s *Store) ListByTradeDate(ctx context.Context, tradeDate string) ([]DecisionRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+decisionCols+` FROM decisions d WHERE d.trade_date = ? ORDER BY d.id ASC`, tradeDate)
	if err != nil {
		return nil, errs.Wrap(errs.PersistenceError, "query decisions by date", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		row, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, errs.Wrap(errs.PersistenceError, "scan decision", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetDecision fetches one decision by row id. Row ids are a paging detail;
// callers outside the journal key by run id instead.
func (s *Store) GetDecision(ctx context.Context, id int64) (DecisionRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions d WHERE d.id = ?`, id)
	return s.oneDecision(row)
}

// GetDecisionByRun fetches the decision journaled for a run.
func (s *Store) GetDecisionByRun(ctx context.Context, runID string) (DecisionRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions d WHERE d.run_id = ?`, runID)
	return s.oneDecision(row)
}

func (s *Store) oneDecision(row *sql.Row) (DecisionRow, error) {
	out, err := scanDecision(row.Scan)
	if err == sql.ErrNoRows {
		return out, errs.New(errs.NotFound, "decision_not_found", "decision not found")
	}
	if err != nil {
		return out, errs.Wrap(errs.PersistenceError, "get decision", err)
	}
	return out, nil
}

// GetRuntimeMode reads the journaled mode. Returns fallback when no row has
// been written yet.
func (s *Store) GetRuntimeMode(ctx context.Context, fallback types.RuntimeMode) (types.RuntimeMode, error) {
	var mode string
	err := s.db.QueryRowContext(ctx, `SELECT mode FROM runtime_mode WHERE id = 1`).Scan(&mode)
	if err == sql.ErrNoRows {
		return fallback, nil
	}
	if err != nil {
		return fallback, errs.Wrap(errs.PersistenceError, "read runtime mode", err)
	}
	m := types.RuntimeMode(mode)
	if !m.Valid() {
		return fallback, nil
	}
	return m, nil
}

// SetRuntimeMode journals the singleton mode row.
func (s *Store) SetRuntimeMode(ctx context.Context, mode types.RuntimeMode) error {
	if !mode.Valid() {
		return errs.New(errs.InvalidInput, "bad_mode", "unknown runtime mode")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runtime_mode(id, mode, updated_at) VALUES(1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET mode=excluded.mode, updated_at=excluded.updated_at
	`, string(mode), time.Now().UnixMilli())
	if err != nil {
		return errs.Wrap(errs.PersistenceError, "write runtime mode", err)
	}
	return nil
}
