package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/lokasan/atom-robots/internal/history"
)

func TestFactoryDSNTypes(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name        string
		dsn         string
		expectError bool
	}{
		{"Empty DSN", "", true},
		{"Invalid scheme", "invalid://test", true},
		{"SQLite file DSN", "sqlite://" + filepath.Join(dir, "a.db"), false},
		{"SQLite memory DSN", "sqlite://:memory:", false},
		{"Bare path", filepath.Join(dir, "b.db"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewSinkFromDSN(context.Background(), tt.dsn)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for DSN %q, got nil", tt.dsn)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for DSN %q: %v", tt.dsn, err)
			}
			if _, ok := sink.(*history.SQLSink); !ok {
				t.Fatalf("expected SQL sink, got %T", sink)
			}
			_ = sink.(*history.SQLSink).Close()
		})
	}
}

func TestNewMultiClosesOnError(t *testing.T) {
	dir := t.TempDir()
	_, err := NewMulti(context.Background(), []string{"sqlite://" + filepath.Join(dir, "ok.db"), "nope://x"})
	if err == nil {
		t.Fatalf("expected error from unsupported DSN")
	}
	m, err := NewMulti(context.Background(), nil)
	if err != nil || len(m) != 0 {
		t.Fatalf("empty list: m=%v err=%v", m, err)
	}
}

func TestParseClickHouseDSN(t *testing.T) {
	tests := []struct {
		dsn   string
		addr  string
		db    string
		table string
		user  string
		pass  string
	}{
		{"clickhouse://localhost:9000?table=events", "localhost:9000", "", "events", "", ""},
		{"clickhouse://bob:secret@ch:9440?database=robots&table=robot_events", "ch:9440", "robots", "robot_events", "bob", "secret"},
		{"clickhouse://", "localhost:9000", "", "", "", ""},
	}
	for _, tt := range tests {
		o, err := ParseClickHouseDSN(tt.dsn)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.dsn, err)
		}
		if o.Addr != tt.addr || o.Database != tt.db || o.Table != tt.table || o.Username != tt.user || o.Password != tt.pass {
			t.Errorf("parse %q: got %+v", tt.dsn, o)
		}
	}
}
