package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetKey(t *testing.T) {
	tc := []struct {
		name string
		ids  []string
		want string
	}{
		{name: "empty", ids: nil, want: ""},
		{name: "single", ids: []string{"a1"}, want: "a1"},
		{name: "sorted", ids: []string{"b", "c", "a"}, want: "a,b,c"},
		{name: "duplicates", ids: []string{"b", "a", "b"}, want: "a,b"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := SetKey(tt.ids); got != tt.want {
				t.Errorf("SetKey() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("order independent", func(t *testing.T) {
		if SetKey([]string{"x", "y"}) != SetKey([]string{"y", "x"}) {
			t.Error("equal sets should share a key")
		}
	})
}

func TestGenerateCode(t *testing.T) {
	code := GenerateCode()
	if len(code) != 8 {
		t.Fatalf("expected 8 character code, got %q", code)
	}
	if code != strings.ToUpper(code) {
		t.Errorf("expected upper-case code, got %q", code)
	}
	if GenerateCode() == code {
		t.Error("expected distinct codes")
	}
}

func TestLogger(t *testing.T) {
	t.Run("NewLogger writes to writer", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf)
		WithLogger(logger, "component", "test").Info("hello")

		out := buf.String()
		if !strings.Contains(out, "hello") || !strings.Contains(out, "component=test") {
			t.Errorf("unexpected log output: %q", out)
		}
	})

	t.Run("NewLoggerFromConfig parses level", func(t *testing.T) {
		logger, err := NewLoggerFromConfig(LogConfig{Level: "debug"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", logger.GetLevel())
		}
	})

	t.Run("NewLoggerFromConfig rejects unknown level", func(t *testing.T) {
		if _, err := NewLoggerFromConfig(LogConfig{Level: "loud"}); err == nil {
			t.Error("expected error for unknown level")
		}
	})
}

func TestDatabase(t *testing.T) {
	t.Run("Rebind", func(t *testing.T) {
		query := "SELECT * FROM users WHERE id = ? AND email = ?"

		sqlite := &Database{Driver: DriverSQLite}
		if got := sqlite.Rebind(query); got != query {
			t.Errorf("sqlite rebind changed query: %q", got)
		}

		pg := &Database{Driver: DriverPostgres}
		want := "SELECT * FROM users WHERE id = $1 AND email = $2"
		if got := pg.Rebind(query); got != want {
			t.Errorf("postgres rebind = %q, want %q", got, want)
		}
	})

	t.Run("OpenDatabase rejects unknown driver", func(t *testing.T) {
		if _, err := OpenDatabase("mysql", "x"); err == nil {
			t.Error("expected error for unknown driver")
		}
	})

	t.Run("IsConflict", func(t *testing.T) {
		if IsConflict(nil) {
			t.Error("nil is not a conflict")
		}
		if !IsConflict(ErrStoreConflict) {
			t.Error("ErrStoreConflict should be a conflict")
		}

		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if _, err := db.Exec("CREATE TABLE t (k TEXT PRIMARY KEY)"); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := db.Exec("INSERT INTO t (k) VALUES ('a')"); err != nil {
			t.Fatalf("insert: %v", err)
		}
		_, err = db.Exec("INSERT INTO t (k) VALUES ('a')")
		if !IsConflict(err) {
			t.Errorf("duplicate key should be a conflict, got %v", err)
		}
	})
}
