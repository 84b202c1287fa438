package kvstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMemoryRoundtrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if err := m.Set(ctx, "profile:1", []byte(`{"name":"Ana"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := m.Get(ctx, "profile:1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"name":"Ana"}` {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrStore) {
		t.Fatal("not-found must not be a store error")
	}
}

func TestMemoryOverwrite(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Set(ctx, "k", []byte("old"))
	_ = m.Set(ctx, "k", []byte("new"))
	got, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("got %q, want the overwritten value", got)
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d", m.Len())
	}
}

func TestMemoryFailNext(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	m.FailNext = fmt.Errorf("boom")
	if err := m.Set(ctx, "k", []byte("v")); !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	// Failure is one-shot.
	if err := m.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("second set should succeed: %v", err)
	}

	m.FailNext = fmt.Errorf("boom")
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrStore) {
		t.Fatalf("expected store error on get, got %v", err)
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf)
	buf[0] = 'x'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}
