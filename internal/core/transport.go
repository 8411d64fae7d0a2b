package core

import (
	"context"

	"github.com/vovakirdan/simsync-server/internal/proto"
)

// Transport is a reliable ordered frame channel to the remote peer. The
// owning client handle is the only component allowed to Close it.
type Transport interface {
	// Send writes one frame to the remote.
	Send(ctx context.Context, frame proto.Frame) error
	// Receive blocks for the next inbound frame.
	Receive(ctx context.Context) (proto.Frame, error)
	// Close shuts the channel down. Must be safe to call more than once.
	Close() error
	// OnClose registers a callback fired when the channel closes, returning
	// a detach func.
	OnClose(fn func()) (detach func())
	// OnError registers a callback fired on a fatal transport error,
	// returning a detach func.
	OnError(fn func(error)) (detach func())
}
