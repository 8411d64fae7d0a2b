package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/simsync-server/internal/proto"
	"github.com/vovakirdan/simsync-server/internal/utils"
)

// stateSync is the synchronizing phase: a one-shot replay of the session's
// retained state to a newly joined client, framed by sync-begin/sync-end.
type stateSync struct {
	client *Client
}

func newStateSync(c *Client) syncPhase {
	return &stateSync{client: c}
}

func (s *stateSync) run(ctx context.Context) error {
	sess := s.client.Session()
	if sess == nil {
		return ErrNoSession
	}
	t := s.client.transport

	if err := t.Send(ctx, proto.Frame{Type: proto.FrameSyncBegin, ID: utils.NewID()}); err != nil {
		return fmt.Errorf("sync begin: %w", err)
	}
	for _, entry := range sess.snapshot() {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(proto.SyncStateData{Key: entry.Key, Payload: entry.Payload})
		if err != nil {
			return fmt.Errorf("marshal state %q: %w", entry.Key, err)
		}
		frame := proto.Frame{Type: proto.FrameSyncState, ID: utils.NewID(), Data: data}
		if err := t.Send(ctx, frame); err != nil {
			return fmt.Errorf("sync state %q: %w", entry.Key, err)
		}
	}
	if err := t.Send(ctx, proto.Frame{Type: proto.FrameSyncEnd, ID: utils.NewID()}); err != nil {
		return fmt.Errorf("sync end: %w", err)
	}
	return nil
}

// send writes directly; there is no read loop yet, so replies stay pending
// until the execution phase takes over correlation.
func (s *stateSync) send(msg Message, _ *PendingReply) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	return s.client.transport.Send(context.Background(), frameFromMessage(msg))
}
