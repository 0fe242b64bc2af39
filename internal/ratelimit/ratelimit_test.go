package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemory_Allow_BurstThenDeny(t *testing.T) {
	m := NewMemory(1, 2)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := m.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got %v, %v", i+1, ok, err)
		}
	}
	if ok, _ := m.Allow(ctx, "10.0.0.1"); ok {
		t.Error("expected third request in the same instant to be denied")
	}

	// Other keys have their own bucket.
	if ok, _ := m.Allow(ctx, "10.0.0.2"); !ok {
		t.Error("expected a different key to be allowed")
	}

	now = now.Add(time.Second)
	if ok, _ := m.Allow(ctx, "10.0.0.1"); !ok {
		t.Error("expected a token to be refilled after one second")
	}
}

func TestMemory_Sweep_RemovesIdleKeys(t *testing.T) {
	m := NewMemory(1, 1)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.nowFn = func() time.Time { return now }

	m.Allow(context.Background(), "idle")
	now = now.Add(defaultMaxIdle + time.Minute)
	m.sweep(now)

	if _, ok := m.entries["idle"]; ok {
		t.Error("expected idle key to be swept")
	}
}
