package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/observability"
)

func newGraduate(mint string, graduatedAt int64) *domain.Graduate {
	return &domain.Graduate{
		Mint:        mint,
		GraduatedAt: graduatedAt,
		Dex:         domain.FallbackDex,
	}
}

func TestGraduateStore_InsertAndGet(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	if err := store.Insert(ctx, newGraduate("mintA", 1000)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := store.Get(ctx, "mintA")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Mint != "mintA" || got.GraduatedAt != 1000 {
		t.Errorf("got %+v", got)
	}

	if _, err := store.Get(ctx, "unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown: err = %v, want ErrNotFound", err)
	}
}

func TestGraduateStore_DuplicateKey(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	if err := store.Insert(ctx, newGraduate("mintA", 1000)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, newGraduate("mintA", 2000)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("second insert: err = %v, want ErrDuplicateKey", err)
	}
	if store.Count() != 1 {
		t.Errorf("count = %d, want 1", store.Count())
	}
}

func TestGraduateStore_InvalidInput(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil insert: err = %v, want ErrInvalidInput", err)
	}
	if err := store.Insert(ctx, newGraduate("", 1000)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty mint: err = %v, want ErrInvalidInput", err)
	}
}

func TestGraduateStore_ListNewestFirst(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	for _, mint := range []string{"first", "second", "third"} {
		if err := store.Insert(ctx, newGraduate(mint, 1000)); err != nil {
			t.Fatalf("Insert %s: %v", mint, err)
		}
	}

	list := store.List(ctx, 0)
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	want := []string{"third", "second", "first"}
	for i, g := range list {
		if g.Mint != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, g.Mint, want[i])
		}
	}

	limited := store.List(ctx, 2)
	if len(limited) != 2 || limited[0].Mint != "third" {
		t.Errorf("limited list = %v", limited)
	}
}

func TestGraduateStore_UpdateInPlace(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	store.Insert(ctx, newGraduate("mintA", 1000))
	store.Insert(ctx, newGraduate("mintB", 2000))

	price := 0.01
	updated, err := store.Update(ctx, "mintA", func(g *domain.Graduate) {
		g.PriceUsd = &price
		g.Dex = "raydium"
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.PriceUsd == nil || *updated.PriceUsd != 0.01 {
		t.Errorf("price not applied: %+v", updated)
	}

	// Enrichment must not move the record.
	list := store.List(ctx, 0)
	if list[0].Mint != "mintB" || list[1].Mint != "mintA" {
		t.Errorf("order changed after update: %s, %s", list[0].Mint, list[1].Mint)
	}

	if _, err := store.Update(ctx, "unknown", func(*domain.Graduate) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("update unknown: err = %v, want ErrNotFound", err)
	}
}

func TestGraduateStore_CloneIsolation(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	store.Insert(ctx, newGraduate("mintA", 1000))

	got, _ := store.Get(ctx, "mintA")
	got.Dex = "mutated"

	again, _ := store.Get(ctx, "mintA")
	if again.Dex != domain.FallbackDex {
		t.Error("external mutation leaked into the store")
	}
}

func TestGraduateStore_RetentionCap(t *testing.T) {
	store := NewGraduateStore(Options{MaxRecords: 2})
	ctx := context.Background()

	store.Insert(ctx, newGraduate("first", 1000))
	store.Insert(ctx, newGraduate("second", 2000))
	store.Insert(ctx, newGraduate("third", 3000))

	if store.Count() != 2 {
		t.Fatalf("count = %d, want 2", store.Count())
	}
	// Oldest record evicted.
	if _, err := store.Get(ctx, "first"); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest record should be evicted, err = %v", err)
	}
	list := store.List(ctx, 0)
	if list[0].Mint != "third" || list[1].Mint != "second" {
		t.Errorf("unexpected order: %s, %s", list[0].Mint, list[1].Mint)
	}
}

func TestGraduateStore_ReplaceAndClear(t *testing.T) {
	store := NewGraduateStore(Options{})
	ctx := context.Background()

	store.Insert(ctx, newGraduate("old", 1000))

	store.Replace(ctx, []*domain.Graduate{
		newGraduate("newA", 3000),
		newGraduate("newB", 2000),
	})
	if store.Count() != 2 {
		t.Fatalf("count after replace = %d, want 2", store.Count())
	}
	if _, err := store.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Error("replaced record should be gone")
	}

	store.Clear(ctx)
	if store.Count() != 0 {
		t.Errorf("count after clear = %d, want 0", store.Count())
	}
}

func TestGraduateStore_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graduates.json")
	snap := NewFileSnapshotter(path)
	ctx := context.Background()

	store := NewGraduateStore(Options{Snapshotter: snap})
	store.Insert(ctx, newGraduate("mintA", 1000))
	store.Insert(ctx, newGraduate("mintB", 2000))

	// A fresh store hydrates from the same snapshot.
	restored := NewGraduateStore(Options{Snapshotter: snap})
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Count() != 2 {
		t.Fatalf("restored count = %d, want 2", restored.Count())
	}
	list := restored.List(ctx, 0)
	if list[0].Mint != "mintB" || list[1].Mint != "mintA" {
		t.Errorf("restored order: %s, %s", list[0].Mint, list[1].Mint)
	}
}

// failingSnapshotter refuses every save.
type failingSnapshotter struct{}

func (failingSnapshotter) Save(context.Context, []*domain.Graduate) error {
	return errors.New("disk full")
}

func (failingSnapshotter) Load(context.Context) ([]*domain.Graduate, error) {
	return nil, nil
}

func TestGraduateStore_PersistFailureCountedAndSwallowed(t *testing.T) {
	store := NewGraduateStore(Options{Snapshotter: failingSnapshotter{}})
	ctx := context.Background()

	before := testutil.ToFloat64(observability.DefaultMetrics.PersistenceErrors)

	// The mutation succeeds even though the snapshot save fails;
	// memory stays authoritative.
	if err := store.Insert(ctx, newGraduate("mintA", 1000)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("count = %d, want 1", store.Count())
	}

	after := testutil.ToFloat64(observability.DefaultMetrics.PersistenceErrors)
	if after != before+1 {
		t.Errorf("persistence errors = %v, want %v", after, before+1)
	}
}

func TestFileSnapshotter_MissingFile(t *testing.T) {
	snap := NewFileSnapshotter(filepath.Join(t.TempDir(), "absent.json"))

	graduates, err := snap.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(graduates) != 0 {
		t.Errorf("expected empty collection, got %d", len(graduates))
	}
}
