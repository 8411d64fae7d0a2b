package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/simsync-server/internal/proto"
	"github.com/vovakirdan/simsync-server/internal/utils"
)

// Client is the server-side handle for one remote session participant: its
// identity, transport binding, protocol phase, outbound queues and
// authoritative flag. A handle joins at most one session in its lifetime.
type Client struct {
	id        string
	joinOrder int64
	version   string

	transport Transport
	rules     *RuleSet
	log       zerolog.Logger

	newSync func(*Client) syncPhase
	newExec func(*Client) execPhase

	mu            sync.Mutex
	userID        string
	replyTimeout  time.Duration
	session       *Session
	authoritative bool
	phase         phaseState
	closed        bool
	queued        queue
	userExclusive queue
	syncCancel    context.CancelFunc
	detachClose   func()
	detachError   func()

	recvObs  notifier[Message]
	closeObs notifier[struct{}]
}

// NewClient binds a handle to its transport. The protocol version is the
// one negotiated at handshake time and never changes. A nil rule set means
// every message type passes through; a nil logger disables logging.
func NewClient(t Transport, version string, rules *RuleSet, logger *zerolog.Logger) *Client {
	if rules == nil {
		rules = NewRuleSet()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	c := &Client{
		id:        utils.NewID(),
		joinOrder: nextJoinOrder(),
		version:   version,
		transport: t,
		rules:     rules,
		newSync:   newStateSync,
		newExec:   newClientExecution,
	}
	c.log = logger.With().Str("client_id", c.id).Logger()

	// Transport failure of any kind resolves to full teardown of this
	// client only; Leave is idempotent so overlapping notifications are safe.
	c.detachClose = t.OnClose(func() {
		c.log.Debug().Msg("transport closed by remote")
		c.Leave()
	})
	c.detachError = t.OnError(func(err error) {
		c.log.Warn().Err(err).Msg("transport error")
		c.Leave()
	})

	return c
}

// ID returns the globally unique identifier assigned at construction.
func (c *Client) ID() string { return c.id }

// JoinOrder returns the process-wide monotonic join order.
func (c *Client) JoinOrder() int64 { return c.joinOrder }

// ProtocolVersion returns the version negotiated at handshake time.
func (c *Client) ProtocolVersion() string { return c.version }

// Transport returns the connection this handle owns.
func (c *Client) Transport() Transport { return c.transport }

// UserID returns the authenticated end-user identifier, if any.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// SetUserID records the authenticated end-user behind this connection.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = userID
}

// SetReplyTimeout sets the fallback deadline for pending replies whose
// queued message does not carry its own. Zero leaves replies unbounded.
func (c *Client) SetReplyTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replyTimeout = d
}

func (c *Client) defaultReplyTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyTimeout
}

// Session returns the joined session, or nil before join and after leave.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Phase returns the tag of the active protocol phase.
func (c *Client) Phase() PhaseKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.kind
}

// IsJoined reports whether the client is fully joined: synchronization
// finished and the execution phase is live.
func (c *Client) IsJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase.kind == PhaseExecuting
}

// Authoritative reports whether this client's simulation output is trusted
// as ground truth.
func (c *Client) Authoritative() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authoritative
}

// OnMessage subscribes to application messages received from this client.
func (c *Client) OnMessage(fn func(*Client, Message)) (detach func()) {
	return c.recvObs.subscribe(func(msg Message) { fn(c, msg) })
}

// OnClose subscribes to teardown completion. Fired exactly once.
func (c *Client) OnClose(fn func()) (detach func()) {
	return c.closeObs.subscribe(func(struct{}) { fn() })
}

// Join binds the client to the session and runs the two-phase protocol:
// a one-shot state synchronization, then steady-state execution. It blocks
// until synchronization finishes. Any synchronization failure is fatal for
// this client: the handle is torn down and never reaches execution.
func (c *Client) Join(ctx context.Context, sess *Session) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.phase.kind != PhaseNone {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.session = sess
	sp := c.newSync(c)
	c.phase = phaseState{kind: PhaseSynchronizing, sync: sp}
	syncCtx, cancel := context.WithCancel(ctx)
	c.syncCancel = cancel
	c.mu.Unlock()

	sess.attach(c)
	c.log.Debug().Str("session", sess.Name()).Msg("state sync started")

	err := sp.run(syncCtx)
	cancel()
	if err != nil {
		c.log.Error().Err(err).Str("session", sess.Name()).Msg("state sync failed")
		c.Leave()
		return err
	}

	c.mu.Lock()
	if c.closed {
		// Teardown won the race against a completing sync run.
		c.mu.Unlock()
		return ErrClientClosed
	}
	ep := c.newExec(c)
	c.phase = phaseState{kind: PhaseExecuting, exec: ep}
	c.syncCancel = nil
	c.mu.Unlock()

	ep.startListening()
	c.log.Info().Str("session", sess.Name()).Int64("join_order", c.joinOrder).Msg("client joined")
	return nil
}

// Send transmits a message through the active phase handler. A handle with
// no active phase only logs and fails the reply: callers holding a stale
// reference must never crash.
func (c *Client) Send(msg Message, reply *PendingReply) {
	c.mu.Lock()
	sender := c.phase.sender()
	c.mu.Unlock()

	if sender == nil {
		c.log.Error().Str("msg_type", msg.Type).Msg("send with no active phase")
		reply.Fail(ErrNoActivePhase)
		return
	}
	if err := sender.send(msg, reply); err != nil {
		c.log.Error().Err(err).Str("msg_type", msg.Type).Msg("send failed")
		reply.Fail(err)
	}
}

// SendPayload marshals data into a fresh message of the given type and
// sends it through the active phase.
func (c *Client) SendPayload(msgType string, data any, reply *PendingReply) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.log.Error().Err(err).Str("msg_type", msgType).Msg("marshal payload")
		reply.Fail(err)
		return
	}
	c.Send(Message{Type: msgType, ID: utils.NewID(), Data: raw}, reply)
}

// SetAuthoritative updates the trust flag and informs the remote with an
// authority control message. With no active phase the flag still updates
// but sending is skipped with an error log.
func (c *Client) SetAuthoritative(v bool) {
	c.mu.Lock()
	c.authoritative = v
	active := c.phase.sender() != nil
	c.mu.Unlock()

	if !active {
		c.log.Error().Bool("authoritative", v).Msg("no active phase to send authority update")
		return
	}
	c.SendPayload(proto.FrameAuthority, proto.AuthorityData{Authoritative: v}, nil)
}

// QueueMessage runs the admission rule for the message type and, if the
// message survives, appends it to the outbound queue. Returns whether the
// message was admitted; a rule dropping it is not an error.
func (c *Client) QueueMessage(msg Message, reply *PendingReply, timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	rule := c.rules.rule(msg.Type)
	out, ok := rule.BeforeQueue(c.session, c, msg, reply)
	if !ok {
		c.log.Debug().Str("msg_type", msg.Type).Msg("message dropped by queue rule")
		return false
	}
	c.queued.append(QueuedMessage{Message: out, Reply: reply, Timeout: timeout})
	c.log.Debug().Str("msg_type", out.Type).Int("queue_len", c.queued.len()).Msg("message queued")
	return true
}

// QueueUserMessage appends to the user-exclusive echo queue. It is kept
// apart from the broadcast queue so ExtractQueued can never touch it.
func (c *Client) QueueUserMessage(msg Message, reply *PendingReply, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userExclusive.append(QueuedMessage{Message: msg, Reply: reply, Timeout: timeout})
}

// ExtractQueued removes and returns, in admission order, the queued
// broadcast messages matching pred. Non-matching entries stay queued in
// their original order.
func (c *Client) ExtractQueued(pred func(QueuedMessage) bool) []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued.extract(pred)
}

// QueuedMessages returns a copy of the broadcast queue.
func (c *Client) QueuedMessages() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued.snapshot()
}

// UserExclusiveMessages returns a copy of the echo queue.
func (c *Client) UserExclusiveMessages() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userExclusive.snapshot()
}

// takeOutbound drains both queues for transmission, echo queue first.
func (c *Client) takeOutbound() []QueuedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.userExclusive.drain()
	return append(out, c.queued.drain()...)
}

func (c *Client) emitMessage(msg Message) {
	c.recvObs.emit(msg)
}

// Leave tears the client down: cancel an in-flight sync, stop listening,
// detach transport notifications, close the transport, clear the session
// and fail abandoned replies. Idempotent; only the first call has effect.
// Teardown never propagates errors since it runs on error-recovery paths.
func (c *Client) Leave() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.syncCancel != nil {
		c.syncCancel()
		c.syncCancel = nil
	}
	ph := c.phase
	c.phase = phaseState{}
	sess := c.session
	c.session = nil
	detachClose, detachError := c.detachClose, c.detachError
	c.detachClose, c.detachError = nil, nil
	abandoned := append(c.userExclusive.drain(), c.queued.drain()...)
	c.mu.Unlock()

	if ph.kind == PhaseExecuting && ph.exec != nil {
		c.safely("stop listening", func() error { ph.exec.stopListening(); return nil })
	}
	// Detach before closing so the close notification cannot re-enter Leave.
	if detachClose != nil {
		detachClose()
	}
	if detachError != nil {
		detachError()
	}
	c.safely("close transport", c.transport.Close)
	if sess != nil {
		sess.detach(c)
	}
	for _, qm := range abandoned {
		qm.Reply.Fail(ErrClientClosed)
	}
	c.closeObs.emit(struct{}{})
	c.log.Info().Msg("client closed")
}

// safely swallows failures during teardown; the handle must reach its
// closed state unconditionally.
func (c *Client) safely(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Debug().Interface("panic", r).Str("op", op).Msg("teardown panic recovered")
		}
	}()
	if err := fn(); err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("teardown error ignored")
	}
}
