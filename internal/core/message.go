package core

import (
	"encoding/json"
	"sync"

	"github.com/vovakirdan/simsync-server/internal/proto"
)

// Message is the payload envelope moved between server and client. The
// client layer only ever looks at Type and ID; Data is opaque.
type Message struct {
	Type string
	ID   string
	Data json.RawMessage
}

// Reply is the outcome delivered to a PendingReply: either the response
// message from the remote or the reason the exchange failed.
type Reply struct {
	Msg Message
	Err error
}

// PendingReply is a one-shot handle resolved when the remote answers a
// message, or failed when the message is discarded or times out. Ownership
// passes to whichever component eventually sends or drops the message.
type PendingReply struct {
	once sync.Once
	ch   chan Reply
}

// NewPendingReply builds an unresolved reply handle.
func NewPendingReply() *PendingReply {
	return &PendingReply{ch: make(chan Reply, 1)}
}

// Resolve completes the reply with the remote's response. Later calls to
// Resolve or Fail are ignored. Safe on a nil receiver.
func (p *PendingReply) Resolve(msg Message) {
	if p == nil {
		return
	}
	p.once.Do(func() { p.ch <- Reply{Msg: msg} })
}

// Fail completes the reply with an error. Safe on a nil receiver.
func (p *PendingReply) Fail(err error) {
	if p == nil {
		return
	}
	p.once.Do(func() { p.ch <- Reply{Err: err} })
}

// Done yields the outcome once Resolve or Fail has run.
func (p *PendingReply) Done() <-chan Reply {
	return p.ch
}

func frameFromMessage(msg Message) proto.Frame {
	return proto.Frame{Type: msg.Type, ID: msg.ID, Data: msg.Data}
}

func messageFromFrame(f proto.Frame) Message {
	return Message{Type: f.Type, ID: f.ID, Data: f.Data}
}
