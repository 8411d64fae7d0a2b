package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/simsync-server/internal/proto"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport is an in-memory Transport: sent frames are recorded,
// inbound frames are pushed by the test.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []proto.Frame
	sendErr   error
	sendCalls int
	gate      chan struct{}
	incoming  chan proto.Frame
	closedCh  chan struct{}
	closeOnce sync.Once
	nextSub   int
	closeSubs map[int]func()
	errSubs   map[int]func(error)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming:  make(chan proto.Frame, 16),
		closedCh:  make(chan struct{}),
		closeSubs: make(map[int]func()),
		errSubs:   make(map[int]func(error)),
	}
}

func (t *fakeTransport) Send(ctx context.Context, frame proto.Frame) error {
	t.mu.Lock()
	t.sendCalls++
	gate := t.gate
	sendErr := t.sendErr
	t.mu.Unlock()

	if sendErr != nil {
		return sendErr
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, frame)
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) (proto.Frame, error) {
	select {
	case f := <-t.incoming:
		return f, nil
	case <-ctx.Done():
		return proto.Frame{}, ctx.Err()
	case <-t.closedCh:
		return proto.Frame{}, errTransportClosed
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closedCh) })
	return nil
}

func (t *fakeTransport) OnClose(fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.closeSubs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.closeSubs, id)
	}
}

func (t *fakeTransport) OnError(fn func(error)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	t.errSubs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.errSubs, id)
	}
}

// remoteClose simulates the peer hanging up.
func (t *fakeTransport) remoteClose() {
	t.closeOnce.Do(func() { close(t.closedCh) })
	t.mu.Lock()
	fns := make([]func(), 0, len(t.closeSubs))
	for _, fn := range t.closeSubs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// injectError simulates a fatal transport failure.
func (t *fakeTransport) injectError(err error) {
	t.mu.Lock()
	fns := make([]func(error), 0, len(t.errSubs))
	for _, fn := range t.errSubs {
		fns = append(fns, fn)
	}
	t.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (t *fakeTransport) sentFrames() []proto.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]proto.Frame, len(t.sent))
	copy(out, t.sent)
	return out
}

// holdSends blocks every subsequent Send until the returned release func
// runs. Blocked sends still honor their context.
func (t *fakeTransport) holdSends() (release func()) {
	gate := make(chan struct{})
	t.mu.Lock()
	t.gate = gate
	t.mu.Unlock()
	return func() { close(gate) }
}

func (t *fakeTransport) sendAttempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sendCalls
}

func (t *fakeTransport) failSends(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

func nopLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func newTestClient(t *fakeTransport, rules *RuleSet) *Client {
	return NewClient(t, proto.Version, rules, nopLogger())
}

// waitUntil polls cond until it holds or the deadline expires.
func waitUntil(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
