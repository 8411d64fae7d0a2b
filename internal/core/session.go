package core

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// StateEntry is one retained state document entry, replayed to joining
// clients during synchronization.
type StateEntry struct {
	Key     string
	Payload json.RawMessage
}

// Session is the shared state a set of clients joins. It tracks membership,
// the retained state document and which member is authoritative.
type Session struct {
	name string
	log  zerolog.Logger

	mu      sync.Mutex
	members map[*Client]struct{}
	state   map[string]json.RawMessage
	arbiter *Client
}

// NewSession builds an empty session.
func NewSession(name string, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		name:    name,
		log:     logger.With().Str("session", name).Logger(),
		members: make(map[*Client]struct{}),
		state:   make(map[string]json.RawMessage),
	}
}

// Name returns the session's name.
func (s *Session) Name() string { return s.name }

// Empty reports whether no clients are attached.
func (s *Session) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members) == 0
}

// Members returns attached clients ordered by join order.
func (s *Session) Members() []*Client {
	s.mu.Lock()
	out := make([]*Client, 0, len(s.members))
	for c := range s.members {
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].joinOrder < out[j].joinOrder })
	return out
}

// Arbiter returns the authoritative member, or nil.
func (s *Session) Arbiter() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arbiter
}

// PromoteAuthority makes c the authoritative member, demoting the previous
// one. Both sides are informed with an authority control message.
func (s *Session) PromoteAuthority(c *Client) {
	s.mu.Lock()
	prev := s.arbiter
	s.arbiter = c
	s.mu.Unlock()

	if prev != nil && prev != c {
		prev.SetAuthoritative(false)
	}
	if c != nil && c != prev {
		c.SetAuthoritative(true)
		s.log.Info().Str("client_id", c.id).Msg("authority promoted")
	}
}

// SetState retains a state document entry. A nil payload deletes the key.
func (s *Session) SetState(key string, payload json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload == nil {
		delete(s.state, key)
		return
	}
	s.state[key] = payload
}

// snapshot returns the retained state in deterministic key order.
func (s *Session) snapshot() []StateEntry {
	s.mu.Lock()
	keys := make([]string, 0, len(s.state))
	for k := range s.state {
		keys = append(keys, k)
	}
	entries := make(map[string]json.RawMessage, len(s.state))
	for k, v := range s.state {
		entries[k] = v
	}
	s.mu.Unlock()

	sort.Strings(keys)
	out := make([]StateEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, StateEntry{Key: k, Payload: entries[k]})
	}
	return out
}

// Broadcast delivers a message to every member. Fully joined members get it
// sent immediately; members still synchronizing have it queued through
// their admission rules.
func (s *Session) Broadcast(msg Message) {
	for _, c := range s.Members() {
		if c.IsJoined() {
			c.Send(msg, nil)
		} else {
			c.QueueMessage(msg, nil, 0)
		}
	}
}

// Relay forwards an inbound client message to every other member.
// Simulation updates coming from a non-authoritative client are not
// trusted and are dropped. Trusted position updates are retained in the
// state document so late joiners synchronize to them.
func (s *Session) Relay(from *Client, msg Message) {
	if msg.Type == MsgTypePositionUpdate {
		if !from.Authoritative() {
			s.log.Debug().Str("client_id", from.id).Msg("untrusted position update dropped")
			return
		}
		if obj := objectID(msg); obj != "" {
			s.SetState("object/"+obj, msg.Data)
		}
	}
	for _, c := range s.Members() {
		if c == from {
			continue
		}
		if c.IsJoined() {
			c.Send(msg, nil)
		} else {
			c.QueueMessage(msg, nil, 0)
		}
	}
}

func (s *Session) attach(c *Client) {
	s.mu.Lock()
	s.members[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("client_id", c.id).Int64("join_order", c.joinOrder).Msg("client attached")
}

func (s *Session) detach(c *Client) {
	s.mu.Lock()
	delete(s.members, c)
	wasArbiter := s.arbiter == c
	var successor *Client
	if wasArbiter {
		s.arbiter = nil
		for m := range s.members {
			if successor == nil || m.joinOrder < successor.joinOrder {
				successor = m
			}
		}
		s.arbiter = successor
	}
	s.mu.Unlock()

	s.log.Debug().Str("client_id", c.id).Msg("client detached")
	if wasArbiter && successor != nil {
		successor.SetAuthoritative(true)
		s.log.Info().Str("client_id", successor.id).Msg("authority promoted")
	}
}
