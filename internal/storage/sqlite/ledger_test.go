package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/discord-voice-mod/internal/budget"
)

func openTestDB(t *testing.T) *LedgerStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store, err := NewLedgerStore(db)
	if err != nil {
		t.Fatalf("NewLedgerStore: %v", err)
	}
	return store
}

func TestLedgerGetInitializesDefaults(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	u, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.TokensUsed != 0 || u.CostUSD != 0 {
		t.Fatalf("fresh usage not zero: %+v", u)
	}
	if u.LimitUSD != budget.DefaultLimitUSD {
		t.Fatalf("limit = %v, want %v", u.LimitUSD, budget.DefaultLimitUSD)
	}
	if want := budget.NextCycleEnd(time.Now()); !u.CycleEnd.Equal(want) {
		t.Fatalf("cycle end = %v, want %v", u.CycleEnd, want)
	}
}

func TestLedgerIncrementAccumulates(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	if _, err := store.Increment(ctx, "g1", 100, 0.001); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	u, err := store.Increment(ctx, "g1", 50, 0.0005)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if u.TokensUsed != 150 {
		t.Fatalf("tokens = %d, want 150", u.TokensUsed)
	}
	if u.CostUSD < 0.00149 || u.CostUSD > 0.00151 {
		t.Fatalf("cost = %v, want 0.0015", u.CostUSD)
	}
}

func TestLedgerRollsOverExpiredCycle(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	// Seed a cycle as if it were recorded two months ago.
	past := time.Now().UTC().AddDate(0, -2, 0)
	if _, err := store.get(ctx, "g1", past); err != nil {
		t.Fatalf("seed get: %v", err)
	}
	if _, err := store.db.ExecContext(ctx,
		`UPDATE vcmod_usage SET tokens_used = 500, cost_usd = 1.5, cycle_end = ? WHERE guild_id = ?`,
		budget.NextCycleEnd(past), "g1"); err != nil {
		t.Fatalf("seed update: %v", err)
	}

	u, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.TokensUsed != 0 || u.CostUSD != 0 {
		t.Fatalf("counters not reset on rollover: %+v", u)
	}
	if want := budget.NextCycleEnd(time.Now()); !u.CycleEnd.Equal(want) {
		t.Fatalf("cycle end = %v, want %v", u.CycleEnd, want)
	}
}

func TestLedgerConcurrentIncrements(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	const workers = 8
	const perWorker = 10
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := store.Increment(ctx, "g1", 10, 0.0001); err != nil {
					t.Errorf("Increment: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	u, err := store.Get(ctx, "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if want := int64(workers * perWorker * 10); u.TokensUsed != want {
		t.Fatalf("tokens = %d, want %d", u.TokensUsed, want)
	}
}
