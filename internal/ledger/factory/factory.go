package factory

import (
	"errors"
	"strings"

	"github.com/lokasan/atom-robots/internal/ledger"
	pg "github.com/lokasan/atom-robots/internal/ledger/postgres"
	sq "github.com/lokasan/atom-robots/internal/ledger/sqlite"
)

// NewFromDSN selects a ledger implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite://<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (ledger.Ledger, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	if strings.Contains(d, "://") {
		return nil, errors.New("unsupported DSN format: " + d)
	}
	return sq.New(d)
}

// SQLitePath returns the filesystem path of a sqlite DSN and whether dsn is one.
func SQLitePath(dsn string) (string, bool) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	switch {
	case ld == "":
		return "", false
	case strings.HasPrefix(ld, "postgres://"), strings.HasPrefix(ld, "postgresql://"):
		return "", false
	case strings.HasPrefix(ld, "sqlite://"):
		return d[len("sqlite://"):], true
	case strings.Contains(d, "://"):
		return "", false
	default:
		return d, true
	}
}
