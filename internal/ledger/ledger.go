package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrStorage wraps every failure coming from the underlying database.
	ErrStorage = errors.New("ledger: storage error")
	// ErrInvalidQuery is returned for pagination parameters that cannot be served.
	ErrInvalidQuery = errors.New("ledger: invalid query")
)

const (
	DefaultLimit = 20
	MaxLimit     = 1000
)

// Run is one record per spawned robot process.
// StartDate is the OS-reported creation time of the process, never the
// insert time; together with PID it identifies an active run.
// Duration is nil while the run is active.
type Run struct {
	ID          int64     `json:"id"`
	StartDate   time.Time `json:"start_date"`
	PID         int       `json:"pid"`
	StartNumber int       `json:"start_number"`
	Duration    *int64    `json:"duration"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Active reports whether the run has no recorded duration yet.
func (r Run) Active() bool { return r.Duration == nil }

// Order is the sort direction of ListStats by start_date.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// ParseOrder accepts "asc" or "desc" (case-insensitive). Empty means asc.
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc":
		return OrderAsc, nil
	case "desc":
		return OrderDesc, nil
	default:
		return "", fmt.Errorf("%w: order_by must be asc or desc, got %q", ErrInvalidQuery, s)
	}
}

// StatsQuery selects a page of runs ordered by start_date.
type StatsQuery struct {
	Offset  int
	Limit   int
	OrderBy Order
}

// Normalize applies defaults and validates the query.
func (q StatsQuery) Normalize() (StatsQuery, error) {
	if q.Offset < 0 {
		return q, fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.OrderBy == "" {
		q.OrderBy = OrderAsc
	}
	if q.OrderBy != OrderAsc && q.OrderBy != OrderDesc {
		return q, fmt.Errorf("%w: unknown order %q", ErrInvalidQuery, q.OrderBy)
	}
	return q, nil
}

// Ledger is the persistent store of robot runs.
// Implementations must be safe for concurrent use.
type Ledger interface {
	EnsureSchema(ctx context.Context) error
	// RecordStart inserts an active run and returns its id.
	RecordStart(ctx context.Context, run Run) (int64, error)
	// RecordStop sets duration on the run only if it is still active.
	// The returned bool is false when the run was already finished or unknown.
	RecordStop(ctx context.Context, id int64, duration int64) (bool, error)
	// FindActive returns the active run with the given pid and start date, or nil.
	FindActive(ctx context.Context, pid int, startDate time.Time) (*Run, error)
	ListActive(ctx context.Context) ([]Run, error)
	ListStats(ctx context.Context, q StatsQuery) ([]Run, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeTime converts t to the representation persisted in start_date:
// UTC, truncated to milliseconds. Both writers and readers of start_date
// must pass through it so equality comparisons hold across round trips.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// StorageErr wraps a driver error with ErrStorage and an operation name.
func StorageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
