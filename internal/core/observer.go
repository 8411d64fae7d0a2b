package core

import "sync"

// notifier is a minimal subscription list. Subscribers get a detach func
// back, which keeps teardown explicit and re-entrancy safe.
type notifier[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

func (n *notifier[T]) subscribe(fn func(T)) (detach func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fns == nil {
		n.fns = make(map[int]func(T))
	}
	id := n.next
	n.next++
	n.fns[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.fns, id)
	}
}

func (n *notifier[T]) emit(v T) {
	n.mu.Lock()
	fns := make([]func(T), 0, len(n.fns))
	for _, fn := range n.fns {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}
