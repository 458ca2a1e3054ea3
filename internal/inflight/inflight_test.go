package inflight

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	ok, _ := g.TryAcquire(ctx, "projects-1")
	if !ok {
		t.Fatal("First acquire should succeed")
	}
	if ok, _ := g.TryAcquire(ctx, "projects-1"); ok {
		t.Error("Second acquire of the same key should be rejected")
	}
	if ok, _ := g.TryAcquire(ctx, "projects-2"); !ok {
		t.Error("Different keys must not block each other")
	}
	if g.ActiveCount() != 2 {
		t.Errorf("Expected 2 active keys, got %d", g.ActiveCount())
	}

	g.Release(ctx, "projects-1")
	if ok, _ := g.TryAcquire(ctx, "projects-1"); !ok {
		t.Error("Acquire after release should succeed")
	}
}

func TestMemoryGuardConcurrentAcquire(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGuard()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.TryAcquire(ctx, "portfolio_images-9"); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}
