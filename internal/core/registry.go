package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Registry tracks live sessions by name, creating them on first join and
// dropping them once the last client leaves.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zerolog.Logger
}

// SessionInfo is a read-only view of one live session.
type SessionInfo struct {
	Name    string `json:"name"`
	Members int    `json:"members"`
	Arbiter string `json:"arbiter,omitempty"`
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{
		sessions: make(map[string]*Session),
		log:      logger,
	}
}

// Get returns the named session, creating it if needed.
func (r *Registry) Get(name string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[name]; ok {
		return s
	}
	s := NewSession(name, r.log)
	r.sessions[name] = s
	r.log.Info().Str("session", name).Msg("session created")
	return s
}

// Release drops the session if it has no members left.
func (r *Registry) Release(s *Session) {
	if s == nil || !s.Empty() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Name()]; ok && cur == s && cur.Empty() {
		delete(r.sessions, s.Name())
		r.log.Info().Str("session", s.Name()).Msg("session dropped")
	}
}

// List returns a view of all live sessions.
func (r *Registry) List() []SessionInfo {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		info := SessionInfo{Name: s.Name(), Members: len(s.Members())}
		if a := s.Arbiter(); a != nil {
			info.Arbiter = a.ID()
		}
		out = append(out, info)
	}
	return out
}
