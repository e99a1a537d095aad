package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hylla/deliveryhub/internal/domain"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// defaultListLimit bounds list queries when the caller passes no limit.
const defaultListLimit = 200

// Journal is the in-memory session ledger of activity events and runs.
// Nothing is written to disk; the data is gone once the journal is closed.
type Journal struct {
	db   *sql.DB
	name string
}

// RunCount is one row of the run summary.
type RunCount struct {
	Kind   domain.RunKind
	Status domain.RunStatus
	Count  int
}

// OpenInMemory opens a private named in-memory database. An empty name gets a random one.
func OpenInMemory(name string) (*Journal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "hub-" + uuid.NewString()
	}
	db, err := sql.Open(driverName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// The database lives as long as one connection stays open.
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	journal := &Journal{db: db, name: name}
	if err := journal.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return journal, nil
}

// Name returns the in-memory database name.
func (j *Journal) Name() string {
	return j.name
}

// Close closes the requested operation.
func (j *Journal) Close() error {
	return j.db.Close()
}

// migrate handles migrate.
func (j *Journal) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_events (
			id INTEGER PRIMARY KEY,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			story_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			step INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			started_at TEXT NOT NULL,
			finished_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind_status ON runs(kind, status);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// RecordActivity stores one activity event; replays of the same id are ignored.
func (j *Journal) RecordActivity(ctx context.Context, event domain.ActivityEvent) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO activity_events(id, text, created_at)
		VALUES(?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, event.ID, event.Text, ts(event.At))
	return err
}

// RecordRun inserts or updates one run record.
func (j *Journal) RecordRun(ctx context.Context, run domain.Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return domain.ErrInvalidID
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs(id, kind, story_id, status, step, total, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			step = excluded.step,
			total = excluded.total,
			finished_at = excluded.finished_at
	`, run.ID, string(run.Kind), run.StoryID, string(run.Status), run.Step, run.Total, ts(run.StartedAt), nullableTS(run.FinishedAt))
	return err
}

// ListActivity returns journaled events, most recent first.
func (j *Journal) ListActivity(ctx context.Context, limit int) ([]domain.ActivityEvent, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, text, created_at
		FROM activity_events
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivityEvent, 0)
	for rows.Next() {
		var (
			event      domain.ActivityEvent
			createdRaw string
		)
		if err := rows.Scan(&event.ID, &event.Text, &createdRaw); err != nil {
			return nil, err
		}
		event.At = parseTS(createdRaw)
		out = append(out, event)
	}
	return out, rows.Err()
}

// ListRuns returns journaled runs in start order.
func (j *Journal) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, kind, story_id, status, step, total, started_at, finished_at
		FROM runs
		ORDER BY rowid ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// RunSummary counts journaled runs by kind and status.
func (j *Journal) RunSummary(ctx context.Context) ([]RunCount, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT kind, status, COUNT(*)
		FROM runs
		GROUP BY kind, status
		ORDER BY kind ASC, status ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]RunCount, 0)
	for rows.Next() {
		var (
			count     RunCount
			kindRaw   string
			statusRaw string
		)
		if err := rows.Scan(&kindRaw, &statusRaw, &count.Count); err != nil {
			return nil, err
		}
		count.Kind = domain.RunKind(kindRaw)
		count.Status = domain.RunStatus(statusRaw)
		out = append(out, count)
	}
	return out, rows.Err()
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

// scanRun handles scan run.
func scanRun(s scanner) (domain.Run, error) {
	var (
		run        domain.Run
		kindRaw    string
		statusRaw  string
		startedRaw string
		finished   sql.NullString
	)
	if err := s.Scan(&run.ID, &kindRaw, &run.StoryID, &statusRaw, &run.Step, &run.Total, &startedRaw, &finished); err != nil {
		return domain.Run{}, err
	}
	run.Kind = domain.RunKind(kindRaw)
	run.Status = domain.RunStatus(statusRaw)
	run.StartedAt = parseTS(startedRaw)
	run.FinishedAt = parseNullTS(finished)
	return run, nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
