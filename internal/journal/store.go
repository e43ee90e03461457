// Package journal implements the durable decision event log: an append-only
// store with interchangeable file and sqlite backends, read-time outcome
// reconciliation and per-handle metrics.
package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradetape/tradetape/internal/config"
)

var (
	// ErrNotFound is returned by Get for an unknown event id.
	ErrNotFound = errors.New("event not found")
	// ErrDuplicateID is returned when appending a base event whose id
	// already exists in the journal.
	ErrDuplicateID = errors.New("duplicate event id")
	// ErrUnsupportedBackend is returned by Open for an unknown backend
	// selector. This is fatal at startup.
	ErrUnsupportedBackend = errors.New("unsupported journal backend")
)

// DurabilityError wraps a failure to persist on the append path. The store
// never retries internally; retry policy belongs to the caller.
type DurabilityError struct {
	Op      string
	Backend string
	Err     error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// Store is the journal handle. Constructed once at startup via Open and
// passed by reference; there is no package-level instance.
//
// Append, AppendBatch and UpdateOutcome block until the record is durable
// (fsync on the file backend, committed statement or transaction on sqlite)
// and propagate persistence failures as *DurabilityError. Events and Get
// reconcile outcomes at read time; they see the append order visible at read
// start and give no stronger isolation against concurrent writers.
type Store interface {
	Append(ctx context.Context, fields map[string]any) (string, error)
	AppendBatch(ctx context.Context, batch []map[string]any) ([]string, error)
	UpdateOutcome(ctx context.Context, id string, outcome map[string]any) error
	Events(ctx context.Context, includeUpdates bool) ([]Event, error)
	Get(ctx context.Context, id string) (Event, error)
	Metrics() map[string]any
	Close() error
}

// Open constructs the configured backend.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case "file":
		return OpenFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path, cfg.PoolSize)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Backend)
	}
}
