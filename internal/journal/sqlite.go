package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	ts TEXT NOT NULL,
	payload TEXT NOT NULL,
	event_type TEXT,
	correlation_id TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
`

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=temp_store(MEMORY)"

// SQLiteStore is the embedded relational backend. Concurrent reads during
// writes are served by WAL journaling; connections come from the bounded
// database/sql pool, one checked out per operation.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	pool  int
	stats metrics
}

// OpenSQLite opens or creates the sqlite journal at path. poolSize bounds
// the connection pool; an in-memory path forces a single connection.
func OpenSQLite(path string, poolSize int) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" && !strings.Contains(path, ":memory:") {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	if poolSize < 1 || strings.Contains(path, ":memory:") {
		poolSize = 1
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path, pool: poolSize}, nil
}

// Append persists one event in an auto-committed statement.
func (s *SQLiteStore) Append(ctx context.Context, fields map[string]any) (string, error) {
	ev := newEvent(fields)
	start := time.Now()
	if err := s.insert(ctx, s.db, ev); err != nil {
		if errors.Is(err, ErrDuplicateID) {
			return "", err
		}
		s.stats.recordError()
		return "", &DurabilityError{Op: "append", Backend: "sqlite", Err: err}
	}
	s.stats.recordWrite(time.Since(start))
	return ev.ID, nil
}

// AppendBatch persists all records in one transaction: a single durability
// barrier at commit.
func (s *SQLiteStore) AppendBatch(ctx context.Context, batch []map[string]any) ([]string, error) {
	events := make([]Event, len(batch))
	ids := make([]string, len(batch))
	seen := make(map[string]struct{}, len(batch))
	for i, fields := range batch {
		ev := newEvent(fields)
		if !ev.IsUpdate() {
			if _, dup := seen[ev.ID]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
			}
			seen[ev.ID] = struct{}{}
		}
		events[i] = ev
		ids[i] = ev.ID
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.stats.recordError()
		return nil, &DurabilityError{Op: "append batch", Backend: "sqlite", Err: err}
	}
	defer tx.Rollback()

	for _, ev := range events {
		if err := s.insert(ctx, tx, ev); err != nil {
			if errors.Is(err, ErrDuplicateID) {
				return nil, err
			}
			s.stats.recordError()
			return nil, &DurabilityError{Op: "append batch", Backend: "sqlite", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		s.stats.recordError()
		return nil, &DurabilityError{Op: "append batch", Backend: "sqlite", Err: err}
	}
	s.stats.recordBatch(len(batch), time.Since(start))
	return ids, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insert writes one record. Base events insert on their primary key and
// reject duplicates; shadow records upsert on their derived id so at most
// one shadow row per target exists, always holding the newest outcome.
func (s *SQLiteStore) insert(ctx context.Context, db execer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	createdAt := time.Now().UTC().Format(tsLayout)

	if ev.IsUpdate() {
		_, err = db.ExecContext(ctx, `
			INSERT INTO events (id, ts, payload, event_type, correlation_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				ts = excluded.ts,
				payload = excluded.payload,
				created_at = excluded.created_at`,
			ev.ID, ev.TS.UTC().Format(tsLayout), string(payload), ev.EventType(), ev.CorrelationID(), createdAt)
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (id, ts, payload, event_type, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.TS.UTC().Format(tsLayout), string(payload), ev.EventType(), ev.CorrelationID(), createdAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %s", ErrDuplicateID, ev.ID)
	}
	return err
}

// UpdateOutcome appends the outcome shadow record for id.
func (s *SQLiteStore) UpdateOutcome(ctx context.Context, id string, outcome map[string]any) error {
	ev := newUpdateRecord(id, outcome)
	start := time.Now()
	if err := s.insert(ctx, s.db, ev); err != nil {
		s.stats.recordError()
		return &DurabilityError{Op: "update outcome", Backend: "sqlite", Err: err}
	}
	s.stats.recordWrite(time.Since(start))
	return nil
}

// Events returns the reconciled view of the whole journal in append order.
func (s *SQLiteStore) Events(ctx context.Context, includeUpdates bool) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM events ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reconcile(events, includeUpdates), nil
}

// Get returns the reconciled event for id via two primary-key lookups.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Event, error) {
	ev, err := s.getRow(ctx, id)
	if err != nil {
		return Event{}, err
	}
	upd, err := s.getRow(ctx, id+updateSuffix)
	if err == nil {
		ev = ev.withOutcome(upd.Outcome())
	} else if !errors.Is(err, ErrNotFound) {
		return Event{}, err
	}
	return ev, nil
}

func (s *SQLiteStore) getRow(ctx context.Context, id string) (Event, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM events WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Event{}, fmt.Errorf("query event %s: %w", id, err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("decode event payload: %w", err)
	}
	return ev, nil
}

// Metrics reports the write counters plus backend identity and tuning.
func (s *SQLiteStore) Metrics() map[string]any {
	return s.stats.snapshot(map[string]any{
		"backend":         "sqlite",
		"path":            s.path,
		"journal_mode":    "WAL",
		"synchronous":     "NORMAL",
		"busy_timeout_ms": 5000,
		"temp_store":      "MEMORY",
		"pool_size":       s.pool,
	})
}

// Close closes the connection pool.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
