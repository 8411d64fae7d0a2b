package core

import (
	"context"
	"sync"
	"time"

	"github.com/vovakirdan/simsync-server/internal/utils"
)

// clientExecution is the executing phase: a read loop re-emitting inbound
// frames as client messages, plus a reply table correlating responses to
// outbound message ids.
type clientExecution struct {
	client *Client
	cancel context.CancelFunc

	mu      sync.Mutex
	pending map[string]*PendingReply
	timers  map[string]*time.Timer
}

func newClientExecution(c *Client) execPhase {
	return &clientExecution{
		client:  c,
		pending: make(map[string]*PendingReply),
		timers:  make(map[string]*time.Timer),
	}
}

// startListening flushes messages queued during synchronization, then
// starts the inbound read loop. The echo queue is drained first.
func (e *clientExecution) startListening() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for _, qm := range e.client.takeOutbound() {
		if err := e.sendWithTimeout(qm.Message, qm.Reply, qm.Timeout); err != nil {
			e.client.log.Warn().Err(err).Str("msg_type", qm.Message.Type).Msg("flush queued message")
		}
	}

	go e.listen(ctx)
}

func (e *clientExecution) stopListening() {
	if e.cancel != nil {
		e.cancel()
	}

	e.mu.Lock()
	pending := e.pending
	timers := e.timers
	e.pending = make(map[string]*PendingReply)
	e.timers = make(map[string]*time.Timer)
	e.mu.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
	for _, reply := range pending {
		reply.Fail(ErrClientClosed)
	}
}

func (e *clientExecution) send(msg Message, reply *PendingReply) error {
	return e.sendWithTimeout(msg, reply, 0)
}

func (e *clientExecution) sendWithTimeout(msg Message, reply *PendingReply, timeout time.Duration) error {
	if msg.ID == "" {
		msg.ID = utils.NewID()
	}
	if reply != nil && timeout == 0 {
		timeout = e.client.defaultReplyTimeout()
	}
	if reply != nil {
		e.mu.Lock()
		e.pending[msg.ID] = reply
		if timeout > 0 {
			id := msg.ID
			e.timers[id] = time.AfterFunc(timeout, func() {
				e.failPending(id, ErrReplyTimeout)
			})
		}
		e.mu.Unlock()
	}
	if err := e.client.transport.Send(context.Background(), frameFromMessage(msg)); err != nil {
		e.failPending(msg.ID, err)
		return err
	}
	return nil
}

func (e *clientExecution) listen(ctx context.Context) {
	for {
		frame, err := e.client.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.client.log.Warn().Err(err).Msg("read loop ended")
				e.client.Leave()
			}
			return
		}
		if frame.ReplyTo != "" && e.resolvePending(frame.ReplyTo, messageFromFrame(frame)) {
			continue
		}
		e.client.emitMessage(messageFromFrame(frame))
	}
}

func (e *clientExecution) resolvePending(id string, msg Message) bool {
	reply, timer := e.takePending(id)
	if timer != nil {
		timer.Stop()
	}
	if reply == nil {
		return false
	}
	reply.Resolve(msg)
	return true
}

func (e *clientExecution) failPending(id string, err error) {
	reply, timer := e.takePending(id)
	if timer != nil {
		timer.Stop()
	}
	if reply != nil {
		reply.Fail(err)
	}
}

func (e *clientExecution) takePending(id string) (*PendingReply, *time.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reply := e.pending[id]
	timer := e.timers[id]
	delete(e.pending, id)
	delete(e.timers, id)
	return reply, timer
}
