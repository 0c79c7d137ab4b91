package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lokasan/atom-robots/internal/ledger"
)

type DB struct {
	db *sql.DB
}

var _ ledger.Ledger = (*DB)(nil)

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, ledger.StorageErr("open", err)
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS robots(
			id BIGSERIAL PRIMARY KEY,
			start_date TIMESTAMPTZ NOT NULL,
			pid INTEGER NOT NULL,
			duration BIGINT NULL,
			start_number BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_robots_active ON robots(pid, start_date);`,
		`CREATE INDEX IF NOT EXISTS idx_robots_start_date ON robots(start_date);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return ledger.StorageErr("ensure schema", err)
		}
	}
	return nil
}

func (p *DB) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) RecordStart(ctx context.Context, run ledger.Run) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO robots(start_date, pid, duration, start_number, updated_at)
		VALUES($1, $2, NULL, $3, $4)
		RETURNING id;`,
		ledger.NormalizeTime(run.StartDate), run.PID, run.StartNumber, ledger.NormalizeTime(time.Now())).Scan(&id)
	if err != nil {
		return 0, ledger.StorageErr("record start", err)
	}
	return id, nil
}

func (p *DB) RecordStop(ctx context.Context, id int64, duration int64) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		UPDATE robots
		SET duration=$1, updated_at=$2
		WHERE id=$3 AND duration IS NULL;`,
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

func (p *DB) FindActive(ctx context.Context, pid int, startDate time.Time) (*ledger.Run, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		WHERE pid=$1 AND start_date=$2 AND duration IS NULL
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

func (p *DB) ListActive(ctx context.Context) ([]ledger.Run, error) {
	rows, err := p.db.QueryContext(ctx, `
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

func (p *DB) ListStats(ctx context.Context, q ledger.StatsQuery) ([]ledger.Run, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		ORDER BY start_date ASC, id ASC
		LIMIT $1 OFFSET $2;`
	if q.OrderBy == ledger.OrderDesc {
		query = `
		SELECT id, start_date, pid, duration, start_number, updated_at
		FROM robots
		ORDER BY start_date DESC, id DESC
		LIMIT $1 OFFSET $2;`
	}
	rows, err := p.db.QueryContext(ctx, query, q.Limit, q.Offset)
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
