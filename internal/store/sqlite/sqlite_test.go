package sqlite

import (
	"context"
	"testing"

	"github.com/vovakirdan/simsync-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateUser(ctx, "alice", "hash")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Username != "alice" || created.IsGuest {
		t.Fatalf("unexpected user: %+v", created)
	}

	byName, err := s.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("get by username: %v", err)
	}
	if byName.ID != created.ID {
		t.Fatalf("expected same user, got ids %d and %d", byName.ID, created.ID)
	}

	if _, err := s.GetUserByUsername(ctx, "nobody"); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, "alice", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := s.CreateUser(ctx, "alice", "hash2"); err == nil {
		t.Fatalf("expected unique constraint error")
	}
}

func TestCreateGuestUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	guest, err := s.CreateGuestUser(ctx, "0123456789abcdef")
	if err != nil {
		t.Fatalf("create guest: %v", err)
	}
	if !guest.IsGuest || guest.SessionID != "0123456789abcdef" {
		t.Fatalf("unexpected guest user: %+v", guest)
	}
	if guest.Username != "guest_01234567" {
		t.Fatalf("unexpected guest username: %s", guest.Username)
	}
}

func TestJournalRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []store.JournalEntry{
		{ClientID: "c1", UserID: "7", Session: "arena", JoinOrder: 1, Event: store.JournalEventJoin},
		{ClientID: "c2", Session: "arena", JoinOrder: 2, Event: store.JournalEventJoin},
		{ClientID: "c1", UserID: "7", Session: "arena", JoinOrder: 1, Event: store.JournalEventLeave},
		{ClientID: "c3", Session: "other", JoinOrder: 3, Event: store.JournalEventJoin},
	}
	for _, e := range entries {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("record %+v: %v", e, err)
		}
	}

	got, err := s.ListBySession(ctx, "arena")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 entries for arena, got %d", len(got))
	}
	if got[0].ClientID != "c1" || got[0].Event != store.JournalEventJoin {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[2].Event != store.JournalEventLeave {
		t.Fatalf("expected leave entry last, got %+v", got[2])
	}
	if got[1].UserID != "" {
		t.Fatalf("expected empty user id for anonymous client, got %q", got[1].UserID)
	}
}
