package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
)

type sqliteJournal struct {
	db  *sql.DB
	cfg *config.StorageConfig
	log logger.Logger
}

func newSQLiteJournal(cfg *config.StorageConfig, log logger.Logger) (Journal, error) {
	path := cfg.Path
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("prepare sqlite directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", filepath.ToSlash(absPath))
	db, err := sql.Open(sqliteDriverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %s: %w", stmt, err)
		}
	}

	j := &sqliteJournal{db: db, cfg: cfg, log: log}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *sqliteJournal) initSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    source_session_id TEXT NOT NULL,
    name TEXT,
    mode TEXT,
    dry_run INTEGER,
    records INTEGER,
    status TEXT NOT NULL,
    error TEXT,
    started_ns INTEGER NOT NULL,
    finished_ns INTEGER,
    replayed INTEGER DEFAULT 0,
    skipped INTEGER DEFAULT 0,
    unclassified INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    not_attempted INTEGER DEFAULT 0,
    planned INTEGER DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns DESC);
CREATE INDEX IF NOT EXISTS idx_runs_source ON runs(source_session_id);

CREATE TABLE IF NOT EXISTS outcomes (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    record_id TEXT,
    hierarchy_path TEXT,
    request_path TEXT,
    depth INTEGER,
    kind TEXT,
    status TEXT NOT NULL,
    model TEXT,
    mutated INTEGER,
    status_code INTEGER,
    response_bytes INTEGER,
    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    total_tokens INTEGER,
    source_cost REAL,
    source_total_tokens INTEGER,
    started_ns INTEGER,
    duration_ms INTEGER,
    error TEXT,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, seq);
`
	_, err := j.db.Exec(schema)
	return err
}

// BeginRun inserts the run row and prunes the oldest runs beyond max_runs.
func (j *sqliteJournal) BeginRun(ctx context.Context, report *session.Report) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	started := report.StartedAt.UTC()
	if started.IsZero() {
		started = time.Now().UTC()
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (
        id, source_session_id, name, mode, dry_run, records, status, started_ns
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Context.SessionID,
		report.SourceSessionID,
		report.Context.Name,
		report.Mode,
		boolToInt(report.DryRun),
		report.Records,
		RunStatusRunning,
		started.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err = j.prune(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (j *sqliteJournal) prune(ctx context.Context, tx *sql.Tx) error {
	if j.cfg.MaxRuns <= 0 {
		return nil
	}
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM runs").Scan(&count); err != nil {
		return fmt.Errorf("count runs: %w", err)
	}
	excess := count - j.cfg.MaxRuns
	if excess <= 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id IN (SELECT id FROM runs ORDER BY started_ns ASC LIMIT ?)", excess); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM outcomes WHERE run_id NOT IN (SELECT id FROM runs)"); err != nil {
		return fmt.Errorf("prune outcomes: %w", err)
	}
	j.log.Debug("Journal pruned", "runs", excess)
	return nil
}

// RecordOutcome appends one outcome row.
func (j *sqliteJournal) RecordOutcome(ctx context.Context, runID string, o session.Outcome) error {
	var startedNs int64
	if !o.StartedAt.IsZero() {
		startedNs = o.StartedAt.UTC().UnixNano()
	}
	_, err := j.db.ExecContext(ctx, `INSERT INTO outcomes (
        id, run_id, seq, record_id, hierarchy_path, request_path, depth, kind,
        status, model, mutated, status_code, response_bytes,
        prompt_tokens, completion_tokens, total_tokens, source_cost, source_total_tokens,
        started_ns, duration_ms, error
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		runID,
		o.Index,
		o.RecordID,
		o.HierarchyPath,
		o.RequestPath,
		o.Depth,
		string(o.Kind),
		string(o.Status),
		o.Model,
		boolToInt(o.Mutated),
		o.StatusCode,
		o.ResponseBytes,
		o.Usage.PromptTokens,
		o.Usage.CompletionTokens,
		o.Usage.TotalTokens,
		o.SourceUsage.Cost,
		o.SourceUsage.TotalTokens,
		startedNs,
		o.DurationMs,
		o.Error,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final counters. A non-nil runErr marks the run aborted.
func (j *sqliteJournal) FinishRun(ctx context.Context, report *session.Report, runErr error) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	finished := report.FinishedAt.UTC()
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	status, errText := RunStatusFinished, ""
	if runErr != nil {
		status, errText = RunStatusAborted, runErr.Error()
	}
	s := report.Summary()

	res, err := j.db.ExecContext(ctx, `UPDATE runs SET
        status = ?, error = ?, finished_ns = ?, records = ?,
        replayed = ?, skipped = ?, unclassified = ?, failed = ?, not_attempted = ?, planned = ?
        WHERE id = ?`,
		status, errText, finished.UnixNano(), report.Records,
		s.Replayed, s.Skipped, s.Unclassified, s.Failed, s.NotAttempted, s.Planned,
		report.Context.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", report.Context.SessionID)
	}
	return nil
}

const runColumns = `id, source_session_id, name, mode, dry_run, records, status, error,
    started_ns, finished_ns, replayed, skipped, unclassified, failed, not_attempted, planned`

// ListRuns returns the most recent runs first.
func (j *sqliteJournal) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_ns DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// GetRun returns nil when no run has the given id.
func (j *sqliteJournal) GetRun(ctx context.Context, id string) (*Run, error) {
	row := j.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Outcomes returns the outcomes of a run in traversal order.
func (j *sqliteJournal) Outcomes(ctx context.Context, runID string) ([]session.Outcome, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT seq, record_id, hierarchy_path, request_path, depth, kind,
        status, model, mutated, status_code, response_bytes,
        prompt_tokens, completion_tokens, total_tokens, source_cost, source_total_tokens,
        started_ns, duration_ms, error
        FROM outcomes WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []session.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func (j *sqliteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*Run, error) {
	var (
		run        Run
		name       sql.NullString
		mode       sql.NullString
		dryRun     sql.NullInt64
		records    sql.NullInt64
		errText    sql.NullString
		startedNs  int64
		finishedNs sql.NullInt64
	)
	if err := scanner.Scan(
		&run.ID,
		&run.SourceSessionID,
		&name,
		&mode,
		&dryRun,
		&records,
		&run.Status,
		&errText,
		&startedNs,
		&finishedNs,
		&run.Summary.Replayed,
		&run.Summary.Skipped,
		&run.Summary.Unclassified,
		&run.Summary.Failed,
		&run.Summary.NotAttempted,
		&run.Summary.Planned,
	); err != nil {
		return nil, err
	}

	run.Name = name.String
	run.Mode = mode.String
	run.DryRun = dryRun.Int64 == 1
	run.Records = int(records.Int64)
	run.Error = errText.String
	run.StartedAt = time.Unix(0, startedNs).UTC()
	if finishedNs.Valid && finishedNs.Int64 > 0 {
		run.FinishedAt = time.Unix(0, finishedNs.Int64).UTC()
	}
	return &run, nil
}

func scanOutcome(scanner interface {
	Scan(dest ...interface{}) error
}) (session.Outcome, error) {
	var (
		o           session.Outcome
		recordID    sql.NullString
		hierarchy   sql.NullString
		requestPath sql.NullString
		depth       sql.NullInt64
		kind        sql.NullString
		status      string
		model       sql.NullString
		mutated     sql.NullInt64
		statusCode  sql.NullInt64
		respBytes   sql.NullInt64
		prompt      sql.NullInt64
		completion  sql.NullInt64
		total       sql.NullInt64
		sourceCost  sql.NullFloat64
		sourceTotal sql.NullInt64
		startedNs   sql.NullInt64
		durationMs  sql.NullInt64
		errText     sql.NullString
	)
	if err := scanner.Scan(
		&o.Index,
		&recordID,
		&hierarchy,
		&requestPath,
		&depth,
		&kind,
		&status,
		&model,
		&mutated,
		&statusCode,
		&respBytes,
		&prompt,
		&completion,
		&total,
		&sourceCost,
		&sourceTotal,
		&startedNs,
		&durationMs,
		&errText,
	); err != nil {
		return o, err
	}

	o.RecordID = recordID.String
	o.HierarchyPath = hierarchy.String
	o.RequestPath = requestPath.String
	o.Depth = int(depth.Int64)
	o.Kind = session.Kind(kind.String)
	o.Status = session.Status(status)
	o.Model = model.String
	o.Mutated = mutated.Int64 == 1
	o.StatusCode = int(statusCode.Int64)
	o.ResponseBytes = respBytes.Int64
	o.Usage = session.Usage{
		PromptTokens:     prompt.Int64,
		CompletionTokens: completion.Int64,
		TotalTokens:      total.Int64,
	}
	o.SourceUsage = session.Usage{Cost: sourceCost.Float64, TotalTokens: sourceTotal.Int64}
	if startedNs.Valid && startedNs.Int64 > 0 {
		o.StartedAt = time.Unix(0, startedNs.Int64).UTC()
	}
	o.DurationMs = durationMs.Int64
	o.Error = errText.String
	return o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
