package factory

import (
	"context"
	"path/filepath"
	"testing"

	pg "github.com/lokasan/atom-robots/internal/ledger/postgres"
	sq "github.com/lokasan/atom-robots/internal/ledger/sqlite"
)

func TestFactoryDSNSelection(t *testing.T) {
	if _, err := NewFromDSN(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
	if _, err := NewFromDSN("mysql://u@h/db"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
	// sql.Open does not connect, so a postgres object can be built without a server
	p, err := NewFromDSN("postgres://user@localhost/db")
	if err != nil {
		t.Fatalf("postgres dsn: %v", err)
	}
	if _, ok := p.(*pg.DB); !ok {
		t.Fatalf("expected postgres ledger, got %T", p)
	}
	_ = p.Close()

	s1, err := NewFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sqlite scheme: %v", err)
	}
	if _, ok := s1.(*sq.DB); !ok {
		t.Fatalf("expected sqlite ledger, got %T", s1)
	}
	_ = s1.Close()

	path := filepath.Join(t.TempDir(), "data", "robots.db")
	s2, err := NewFromDSN(path)
	if err != nil {
		t.Fatalf("bare sqlite: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if err := s2.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema on bare path: %v", err)
	}
}

func TestSQLitePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{"sqlite://robots.db", "robots.db", true},
		{"data/robots.db", "data/robots.db", true},
		{"POSTGRES://u@h/db", "", false},
		{"postgresql://u@h/db", "", false},
		{"", "", false},
		{"mysql://u@h/db", "", false},
	}
	for _, c := range cases {
		p, ok := SQLitePath(c.dsn)
		if p != c.path || ok != c.ok {
			t.Errorf("SQLitePath(%q) = %q,%v; want %q,%v", c.dsn, p, ok, c.path, c.ok)
		}
	}
}
