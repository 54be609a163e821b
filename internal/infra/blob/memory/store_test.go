package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"entitysync/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}

	info, err := store.Put(ctx, "teams/7/large", bytes.NewReader([]byte("png")), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"variant": "large"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 3 || info.ETag == "" || info.ContentType != "image/png" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := store.Put(ctx, "teams/7/large", bytes.NewReader([]byte("again")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists error, got %v", err)
	}
	if _, err := store.Put(ctx, "  ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}

	info.Metadata["variant"] = "mutated"
	head, err := store.Head(ctx, "teams/7/large")
	if err != nil || head.Metadata["variant"] != "large" {
		t.Fatalf("metadata must be copied, got %+v %v", head, err)
	}

	_, rc, err := store.Get(ctx, "teams/7/large")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "png" {
		t.Fatalf("unexpected data %q", data)
	}

	if _, err := store.Put(ctx, "teams/8/small", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "teams/7/")
	if err != nil || len(list) != 1 || list[0].Key != "teams/7/large" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected sorted full list, got %+v", all)
	}
	if ok, err := store.Delete(ctx, "teams/7/large"); err != nil || !ok {
		t.Fatalf("expected delete true, got %v %v", ok, err)
	}
	if _, err := store.PresignURL(ctx, "teams/8/small", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
}

func TestStorePutHonoursCancellation(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v")), core.PutOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if list, _ := store.List(context.Background(), ""); len(list) != 0 {
		t.Fatalf("cancelled put must not store, got %+v", list)
	}
}
