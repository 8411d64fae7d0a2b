package core

import (
	"encoding/json"
	"sync"
)

// QueueRule is the admission policy for one message type. BeforeQueue may
// return a modified message, or ok=false to drop it silently (coalescing,
// suppression, staleness rejection). Rules run with the client's queue lock
// held and may touch the client's queues directly, but must not call back
// into locking client methods.
type QueueRule interface {
	BeforeQueue(sess *Session, c *Client, msg Message, reply *PendingReply) (Message, bool)
}

// QueueRuleFunc adapts a function to the QueueRule interface.
type QueueRuleFunc func(sess *Session, c *Client, msg Message, reply *PendingReply) (Message, bool)

func (f QueueRuleFunc) BeforeQueue(sess *Session, c *Client, msg Message, reply *PendingReply) (Message, bool) {
	return f(sess, c, msg, reply)
}

// passThrough admits messages unchanged. It backs every unregistered type.
var passThrough QueueRule = QueueRuleFunc(func(_ *Session, _ *Client, msg Message, _ *PendingReply) (Message, bool) {
	return msg, true
})

// RuleSet maps message types to admission rules.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[string]QueueRule
}

// NewRuleSet builds an empty rule set; every type passes through.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string]QueueRule)}
}

// Register binds a rule to a message type, replacing any previous one.
func (rs *RuleSet) Register(msgType string, rule QueueRule) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rules[msgType] = rule
}

func (rs *RuleSet) rule(msgType string) QueueRule {
	if rs == nil {
		return passThrough
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if r, ok := rs.rules[msgType]; ok && r != nil {
		return r
	}
	return passThrough
}

// MsgTypePositionUpdate is the high-frequency object movement message.
const MsgTypePositionUpdate = "position-update"

// LatestPerObject returns a coalescing rule: only the newest queued message
// of the incoming type is kept per object id. Older entries for the same
// object are removed and their pending replies failed with ErrSuperseded.
// Message data must carry an "object" field.
func LatestPerObject() QueueRule {
	return QueueRuleFunc(func(_ *Session, c *Client, msg Message, _ *PendingReply) (Message, bool) {
		obj := objectID(msg)
		if obj == "" {
			return msg, true
		}
		stale := c.queued.extract(func(qm QueuedMessage) bool {
			return qm.Message.Type == msg.Type && objectID(qm.Message) == obj
		})
		for _, qm := range stale {
			qm.Reply.Fail(ErrSuperseded)
		}
		return msg, true
	})
}

func objectID(msg Message) string {
	var payload struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return ""
	}
	return payload.Object
}

// DefaultRules is the server's standard rule table.
func DefaultRules() *RuleSet {
	rs := NewRuleSet()
	rs.Register(MsgTypePositionUpdate, LatestPerObject())
	return rs
}
