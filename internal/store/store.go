package store

import (
	"context"
	"time"
)

// User represents a registered or guest account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // guest session tracking
	CreatedAt    time.Time
}

// Journal event kinds.
const (
	JournalEventJoin  = "join"
	JournalEventLeave = "leave"
)

// JournalEntry is one session membership audit record.
type JournalEntry struct {
	ID        int64
	ClientID  string
	UserID    string // empty for anonymous clients
	Session   string
	JoinOrder int64
	Event     string
	At        time.Time
}

// UserStore provides account persistence.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// SessionJournal records client join/leave events for auditing.
type SessionJournal interface {
	Record(ctx context.Context, entry JournalEntry) error
	ListBySession(ctx context.Context, session string) ([]JournalEntry, error)
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	SessionJournal
	Close() error
}
