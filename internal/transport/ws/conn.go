// Package ws adapts a websocket connection to the core transport contract.
package ws

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/simsync-server/internal/proto"
)

// Conn wraps a websocket connection as a core.Transport. Frames travel as
// JSON. Close and error observers fire at most once each.
type Conn struct {
	conn *websocket.Conn

	mu        sync.Mutex
	closed    bool
	errFired  bool
	nextSub   int
	closeSubs map[int]func()
	errSubs   map[int]func(error)
}

// NewConn wraps an accepted or dialed websocket connection.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{
		conn:      conn,
		closeSubs: make(map[int]func()),
		errSubs:   make(map[int]func(error)),
	}
}

// Send writes one frame. Write failures also notify error observers so the
// owning client can tear itself down.
func (c *Conn) Send(ctx context.Context, frame proto.Frame) error {
	if err := wsjson.Write(ctx, c.conn, frame); err != nil {
		c.notifyError(err)
		return err
	}
	return nil
}

// Receive blocks for the next inbound frame. A normal remote closure fires
// the close observers; anything else fires the error observers.
func (c *Conn) Receive(ctx context.Context) (proto.Frame, error) {
	var frame proto.Frame
	if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
		if ctx.Err() != nil {
			return proto.Frame{}, err
		}
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF) {
			c.notifyClose()
		} else {
			c.notifyError(err)
		}
		return proto.Frame{}, err
	}
	return frame, nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	c.notifyClose()
	return err
}

// OnClose registers a close observer, returning a detach func.
func (c *Conn) OnClose(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.closeSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.closeSubs, id)
	}
}

// OnError registers an error observer, returning a detach func.
func (c *Conn) OnError(fn func(error)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.errSubs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.errSubs, id)
	}
}

func (c *Conn) notifyClose() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.closeSubs))
	for _, fn := range c.closeSubs {
		fns = append(fns, fn)
	}
	c.closeSubs = make(map[int]func())
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *Conn) notifyError(err error) {
	c.mu.Lock()
	if c.errFired {
		c.mu.Unlock()
		return
	}
	c.errFired = true
	fns := make([]func(error), 0, len(c.errSubs))
	for _, fn := range c.errSubs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}
