package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryStatusRoundTrip(t *testing.T) {
	m := NewMemoryStatus(time.Hour)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	meta := map[string]interface{}{"mode": "nup", "cells_per_sheet": 4}
	want := Status{Kind: "export", Status: "building", Progress: 40, Start: &start, Metadata: meta}
	if err := m.Set(ctx, "job-1", want); err != nil {
		t.Fatal(err)
	}
	meta["mode"] = "mutated"

	got, ok, err := m.Get(ctx, "job-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	want.Metadata = map[string]interface{}{"mode": "nup", "cells_per_sheet": 4}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status (-want +got):\n%s", diff)
	}
	if _, ok, _ := m.Get(ctx, "job-2"); ok {
		t.Fatal("unknown job found")
	}
}

func TestMemoryStatusExpires(t *testing.T) {
	m := NewMemoryStatus(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	if err := m.Set(context.Background(), "job", Status{Status: "done"}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(context.Background(), "job"); ok {
		t.Fatal("expired job still visible")
	}
}
