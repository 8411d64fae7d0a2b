package core

import (
	"sync"
	"testing"
)

func TestJoinOrderSequential(t *testing.T) {
	a := nextJoinOrder()
	b := nextJoinOrder()
	if a >= b {
		t.Fatalf("expected strictly increasing join orders, got %d then %d", a, b)
	}
}

func TestJoinOrderConcurrentUnique(t *testing.T) {
	const workers = 16
	const perWorker = 200

	results := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results <- nextJoinOrder()
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int64]struct{}, workers*perWorker)
	for v := range results {
		if _, dup := seen[v]; dup {
			t.Fatalf("duplicate join order %d", v)
		}
		seen[v] = struct{}{}
	}
	if len(seen) != workers*perWorker {
		t.Fatalf("expected %d distinct values, got %d", workers*perWorker, len(seen))
	}
}

func TestClientsGetIncreasingJoinOrders(t *testing.T) {
	a := newTestClient(newFakeTransport(), nil)
	b := newTestClient(newFakeTransport(), nil)

	if a.JoinOrder() >= b.JoinOrder() {
		t.Fatalf("expected a.JoinOrder < b.JoinOrder, got %d and %d", a.JoinOrder(), b.JoinOrder())
	}
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct client ids")
	}
}
