// Package eventstore implements the append-only event log that is the sole
// durable record of a run, backed by an embedded SQLite database opened in
// WAL mode.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcp-tool-shop/nexus-router/pkg/canonjson"
	"github.com/mcp-tool-shop/nexus-router/pkg/nexuserr"
)

// RunStatus is one of the three states a run can be in.
type RunStatus string

const (
	StatusRunning   RunStatus = "RUNNING"
	StatusCompleted RunStatus = "COMPLETED"
	StatusFailed    RunStatus = "FAILED"
)

// Run is a row from the runs table.
type Run struct {
	RunID     string
	Mode      string
	Goal      string
	Status    RunStatus
	CreatedAt time.Time
}

// Event is a row from the events table, with Payload already decoded into
// the generic JSON tree shape.
type Event struct {
	EventID   string
	RunID     string
	Seq       int64
	Type      string
	Payload   map[string]any
	Timestamp time.Time
}

// Store is the embedded-database-backed event log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite file at path in WAL mode and
// ensures the schema exists. Pass ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:mem-%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single-writer discipline; avoids seq races across connections.

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for callers (export/import) that need
// direct transactional access to both tables at once.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	goal TEXT NOT NULL,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	type TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	ts TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq);
CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id);
`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts a new RUNNING run row and returns its freshly allocated
// run_id.
func (s *Store) CreateRun(ctx context.Context, mode, goal string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, mode, goal, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, mode, goal, string(StatusRunning), nowISO(),
	)
	if err != nil {
		return "", nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to create run: %v", err), nil)
	}
	return runID, nil
}

// Append atomically allocates the next seq for run_id, canonicalizes
// payload, and inserts the event row. It fails with a bug error on a
// duplicate (run_id, seq), which should be unreachable under the store's own
// allocation but guards against concurrent external writers.
func (s *Store) Append(ctx context.Context, runID, eventType string, payload map[string]any) (*Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to begin transaction: %v", err), nil)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE run_id = ?`, runID).Scan(&maxSeq); err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to allocate seq: %v", err), nil)
	}
	seq := maxSeq.Int64 + 1

	canonical, err := canonjson.MarshalString(payload)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to canonicalize payload: %v", err), nil)
	}

	eventID := uuid.NewString()
	ts := nowISO()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (event_id, run_id, seq, type, payload_json, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, runID, seq, eventType, canonical, ts,
	)
	if err != nil {
		return nil, nexuserr.Bug("SEQ_DUPLICATE", fmt.Sprintf("duplicate (run_id, seq) for run %s seq %d: %v", runID, seq, err), map[string]any{
			"run_id": runID,
			"seq":    seq,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to commit event: %v", err), nil)
	}

	return &Event{
		EventID:   eventID,
		RunID:     runID,
		Seq:       seq,
		Type:      eventType,
		Payload:   payload,
		Timestamp: parseISO(ts),
	}, nil
}

// ReadEvents returns every event for run_id in seq order.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, run_id, seq, type, payload_json, ts FROM events WHERE run_id = ? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to read events: %v", err), nil)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var payloadJSON, ts string
		if err := rows.Scan(&e.EventID, &e.RunID, &e.Seq, &e.Type, &payloadJSON, &ts); err != nil {
			return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to scan event row: %v", err), nil)
		}
		decoded, err := canonjson.Decode([]byte(payloadJSON))
		if err != nil {
			return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to decode event payload: %v", err), nil)
		}
		if m, ok := decoded.(map[string]any); ok {
			e.Payload = m
		} else {
			e.Payload = map[string]any{}
		}
		e.Timestamp = parseISO(ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetRun returns the run row for run_id, or (nil, nil) if it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var r Run
	var status, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, mode, goal, status, created_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.Mode, &r.Goal, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to read run: %v", err), nil)
	}
	r.Status = RunStatus(status)
	r.CreatedAt = parseISO(createdAt)
	return &r, nil
}

// SetRunStatus updates the persisted status of run_id.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status RunStatus) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE run_id = ?`, string(status), runID)
	if err != nil {
		return nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to set run status: %v", err), nil)
	}
	return nil
}

// ListRunsFilter narrows ListRuns. A zero-valued field is not applied.
type ListRunsFilter struct {
	Status RunStatus
	Since  time.Time
	Until  time.Time
}

// ListRuns returns runs matching filter, most recently created first.
func (s *Store) ListRuns(ctx context.Context, filter ListRunsFilter) ([]Run, error) {
	query := `SELECT run_id, mode, goal, status, created_at FROM runs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC().Format(isoLayout))
	}
	if !filter.Until.IsZero() {
		query += ` AND created_at <= ?`
		args = append(args, filter.Until.UTC().Format(isoLayout))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to list runs: %v", err), nil)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var status, createdAt string
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Goal, &status, &createdAt); err != nil {
			return nil, nexuserr.Bug("OS_ERROR", fmt.Sprintf("failed to scan run row: %v", err), nil)
		}
		r.Status = RunStatus(status)
		r.CreatedAt = parseISO(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

const isoLayout = "2006-01-02T15:04:05.000Z"

func nowISO() string {
	return time.Now().UTC().Format(isoLayout)
}

func parseISO(s string) time.Time {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
