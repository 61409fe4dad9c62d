package store

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
)

func TestSnapshotRepo_LoadEmpty(t *testing.T) {
	repo := NewSnapshotRepo(NewMemoryKV(), "")

	ids, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ids != nil {
		t.Errorf("Load = %v, want nil", ids)
	}
}

func TestSnapshotRepo_RoundTripAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reportwatch.db")

	kv, err := NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("NewSQLiteKV: %v", err)
	}
	want := []string{"r1", "r2", "r3"}
	if err := NewSnapshotRepo(kv, ActiveJobsKey).Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	kv.Close()

	// Simulate a process restart.
	kv, err = NewSQLiteKV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	got, err := NewSnapshotRepo(kv, ActiveJobsKey).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	slices.Sort(got)
	if !slices.Equal(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestSnapshotRepo_SaveEmptyIsArray(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	repo := NewSnapshotRepo(kv, "")

	if err := repo.Save(ctx, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, ok, _ := kv.Get(ctx, ActiveJobsKey)
	if !ok || string(raw) != "[]" {
		t.Errorf("stored = (%q, %v), want (\"[]\", true)", raw, ok)
	}
}

func TestSnapshotRepo_CorruptValue(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.Put(ctx, ActiveJobsKey, []byte("{not json"))

	if _, err := NewSnapshotRepo(kv, "").Load(ctx); err == nil {
		t.Error("expected error for corrupt snapshot, got nil")
	}
}
