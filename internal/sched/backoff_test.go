package sched

import (
	"testing"
	"time"
)

func TestConnectBackoffDoublesToCap(t *testing.T) {
	b := NewConnectBackoff(30*time.Second, 600*time.Second)
	want := []time.Duration{
		30 * time.Second,
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		600 * time.Second,
		600 * time.Second,
	}
	for i, w := range want {
		if got := b.RecordFailure("g1", "c1"); got != w {
			t.Fatalf("failure %d: delay = %v, want %v", i+1, got, w)
		}
	}
}

func TestConnectBackoffEnforcesBaseFloor(t *testing.T) {
	b := NewConnectBackoff(time.Second, 600*time.Second)
	if got := b.RecordFailure("g1", "c1"); got != 5*time.Second {
		t.Fatalf("delay = %v, want 5s floor", got)
	}
}

func TestConnectBackoffTracksCombosIndependently(t *testing.T) {
	b := NewConnectBackoff(30*time.Second, 600*time.Second)
	b.RecordFailure("g1", "c1")
	b.RecordFailure("g1", "c1")
	if got := b.RecordFailure("g1", "c2"); got != 30*time.Second {
		t.Fatalf("fresh combo delay = %v, want 30s", got)
	}
	if got := b.RecordFailure("g2", "c1"); got != 30*time.Second {
		t.Fatalf("fresh guild delay = %v, want 30s", got)
	}
}

func TestConnectBackoffClearResets(t *testing.T) {
	b := NewConnectBackoff(30*time.Second, 600*time.Second)
	b.RecordFailure("g1", "c1")
	b.RecordFailure("g1", "c1")
	b.Clear("g1", "c1")
	if got := b.Remaining("g1", "c1"); got != 0 {
		t.Fatalf("Remaining after Clear = %v, want 0", got)
	}
	if got := b.RecordFailure("g1", "c1"); got != 30*time.Second {
		t.Fatalf("delay after Clear = %v, want 30s", got)
	}
}

func TestConnectBackoffRemainingExpires(t *testing.T) {
	b := NewConnectBackoff(30*time.Second, 600*time.Second)
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }

	b.RecordFailure("g1", "c1")
	if got := b.Remaining("g1", "c1"); got != 30*time.Second {
		t.Fatalf("Remaining = %v, want 30s", got)
	}

	current = current.Add(10 * time.Second)
	if got := b.Remaining("g1", "c1"); got != 20*time.Second {
		t.Fatalf("Remaining after 10s = %v, want 20s", got)
	}

	current = current.Add(25 * time.Second)
	if got := b.Remaining("g1", "c1"); got != 0 {
		t.Fatalf("Remaining after expiry = %v, want 0", got)
	}
	// Expiry forgets the combo, so the next failure starts over at base.
	if got := b.RecordFailure("g1", "c1"); got != 30*time.Second {
		t.Fatalf("delay after expiry = %v, want 30s", got)
	}
}
