package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"entitysync/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "entitysync.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Path() != path {
		t.Fatalf("unexpected path %q", store.Path())
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.Create(domain.NewEntity(domain.KindTeam, "1", map[string]any{"name": "Acme"}, map[string][]domain.RelationItem{
			domain.RelationProjects: domain.Items("b", "a"),
		})); err != nil {
			return err
		}
		_, err := tx.Create(domain.NewEntity(domain.KindUser, "2", map[string]any{"login": "ada"}, nil))
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	team, ok := reopened.Get(domain.Ref(domain.KindTeam, "1"))
	if !ok || team.Attr("name") != "Acme" {
		t.Fatalf("team not restored: %+v", team)
	}
	if ids := team.Relation(domain.RelationProjects).IDs(); len(ids) != 2 || ids[0] != "b" || ids[1] != "a" {
		t.Fatalf("expected ordered projects [b a], got %v", ids)
	}
	if user, ok := reopened.Get(domain.Ref(domain.KindUser, "2")); !ok || user.Attr("login") != "ada" {
		t.Fatalf("user not restored: %+v", user)
	}
}

func TestFailedTransactionIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.Delete(domain.Ref(domain.KindTeam, "404"))
	})
	if err == nil {
		t.Fatalf("expected not found error")
	}
	var rows int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 0 {
		t.Fatalf("expected no snapshot rows, got %d", rows)
	}
	_ = store.Close()
}

func TestNewStoreRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('teams', ?)`, []byte(`{not json`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected corrupt snapshot error")
	}
}
