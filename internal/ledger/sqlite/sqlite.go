package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lokasan/atom-robots/internal/ledger"
)

// DB implements ledger.Ledger for SQLite (modernc.org/sqlite driver, CGO-free).
// The DSN is a filesystem path to the database file; ":memory:" is in-memory.
// The file and its parent directory are created lazily on first open.
type DB struct {
	db *sql.DB
}

var _ ledger.Ledger = (*DB)(nil)

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if p != ":memory:" && !strings.HasPrefix(p, "file:") {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, ledger.StorageErr("create dir", err)
			}
		}
	}
	d, err := sql.Open("sqlite", withTimeFormat(p))
	if err != nil {
		return nil, ledger.StorageErr("open", err)
	}
	// a single connection keeps :memory: databases shared and serializes writers
	d.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks from robot processes
	_, _ = d.Exec("PRAGMA busy_timeout=5000;")
	return &DB{db: d}, nil
}

// withTimeFormat makes the driver persist time.Time in a sortable text form.
func withTimeFormat(p string) string {
	sep := "?"
	if strings.Contains(p, "?") {
		sep = "&"
	}
	return p + sep + "_time_format=sqlite"
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS robots(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			start_date TIMESTAMP NOT NULL,
			pid INTEGER NOT NULL,
			duration INTEGER NULL,
			start_number INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_robots_active ON robots(pid, start_date);`,
		`CREATE INDEX IF NOT EXISTS idx_robots_start_date ON robots(start_date);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return ledger.StorageErr("ensure schema", err)
		}
	}
	return nil
}

func (s *DB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) RecordStart(ctx context.Context, run ledger.Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO robots(start_date, pid, duration, start_number, updated_at)
		VALUES(?, ?, NULL, ?, ?);`,
		ledger.NormalizeTime(run.StartDate), run.PID, run.StartNumber, ledger.NormalizeTime(time.Now()))
	if err != nil {
		return 0, ledger.StorageErr("record start", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ledger.StorageErr("record start", err)
	}
	return id, nil
}

func (s *DB) RecordStop(ctx context.Context, id int64, duration int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE robots
		SET duration=?, updated_at=?
		WHERE id=? AND duration IS NULL;`,
		duration, ledger.NormalizeTime(time.Now()), id)
	if err != nil {
		return false, ledger.StorageErr("record stop", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, ledger.StorageErr("record stop", err)
	}
	return n > 0, nil
}

func (s *DB) FindActive(ctx context.Context, pid int, startDate time.Time) (*ledger.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		WHERE pid=? AND start_date=? AND duration IS NULL
		ORDER BY id
		LIMIT 1;`, pid, ledger.NormalizeTime(startDate))
	if err != nil {
		return nil, ledger.StorageErr("find active", err)
	}
	defer func() { _ = rows.Close() }()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, ledger.StorageErr("find active", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *DB) ListActive(ctx context.Context) ([]ledger.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		WHERE duration IS NULL
		ORDER BY id;`)
	if err != nil {
		return nil, ledger.StorageErr("list active", err)
	}
	defer func() { _ = rows.Close() }()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, ledger.StorageErr("list active", err)
	}
	return runs, nil
}

func (s *DB) ListStats(ctx context.Context, q ledger.StatsQuery) ([]ledger.Run, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	order := "ASC"
	if q.OrderBy == ledger.OrderDesc {
		order = "DESC"
	}
	// order is one of two literals, never user input
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		ORDER BY start_date `+order+`, id `+order+`
		LIMIT ? OFFSET ?;`, q.Limit, q.Offset)
	if err != nil {
		return nil, ledger.StorageErr("list stats", err)
	}
	defer func() { _ = rows.Close() }()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, ledger.StorageErr("list stats", err)
	}
	return runs, nil
}

func scanRuns(rows *sql.Rows) ([]ledger.Run, error) {
	out := make([]ledger.Run, 0)
	for rows.Next() {
		var (
			r   ledger.Run
			dur sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.StartDate, &r.PID, &dur, &r.StartNumber, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if dur.Valid {
			d := dur.Int64
			r.Duration = &d
		}
		r.StartDate = r.StartDate.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
