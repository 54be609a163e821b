package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"entitysync/internal/infra/persistence/memory"
	"entitysync/internal/infra/persistence/sqlite"
	"entitysync/pkg/domain"
)

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()

	t.Run("memory", func(t *testing.T) {
		t.Setenv(EnvDriver, string(DriverMemory))
		store, err := Open(ctx, engine)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if _, ok := store.(*memory.Store); !ok {
			t.Fatalf("expected memory store, got %T", store)
		}
	})

	t.Run("sqlite default", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		t.Setenv(EnvDriver, "")
		t.Setenv(EnvSQLitePath, path)
		store, err := Open(ctx, engine)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		s, ok := store.(*sqlite.Store)
		if !ok {
			t.Fatalf("expected sqlite store, got %T", store)
		}
		defer s.Close()
		if s.Path() != path {
			t.Fatalf("expected path %s, got %s", path, s.Path())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		t.Setenv(EnvDriver, "oracle")
		store, err := Open(ctx, engine)
		if err == nil || store != nil {
			t.Fatalf("expected error and nil store, got %v %v", store, err)
		}
	})
}
