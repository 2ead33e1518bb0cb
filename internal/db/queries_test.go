package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

func newTestStore(t *testing.T) (*SessionStore, *sql.DB) {
	t.Helper()
	database, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSessionStore(database), database
}

// newTestSession builds a session with millisecond timestamps so it survives a round trip.
func newTestSession(id string, lastActivity time.Time) *session.Session {
	s := session.New(id)
	s.CreatedAt = lastActivity.Truncate(time.Millisecond)
	s.LastActivity = lastActivity.Truncate(time.Millisecond)
	return s
}

func TestSessionStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	s := newTestSession("s1", time.Now().UTC())
	s.Messages = []session.Message{
		{Role: "user", Content: "Draft a ransomware exercise"},
		{Role: "assistant", Content: "Here is a first pass."},
	}
	doc := mel.Build([]mel.Inject{
		{Number: "1", Serial: "Detection", Message: "SOC sees encryption"},
		{Number: "2", Serial: "Detection", Message: "Helpdesk flooded"},
	}, "")
	s.Record(doc, session.FullCreation, 0)
	s.History[0].RecordedAt = s.History[0].RecordedAt.Truncate(time.Millisecond)
	s.LastActivity = s.LastActivity.Truncate(time.Millisecond)

	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if diff := cmp.Diff(s.Messages, got.Messages); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if got.Current == nil || got.Current.ID != doc.ID || got.Current.Version != 1 {
		t.Fatalf("Current = %+v, want document %s v1", got.Current, doc.ID)
	}
	if len(got.Current.Injects) != 2 || got.Current.Injects[1].Message != "Helpdesk flooded" {
		t.Errorf("Current.Injects = %+v", got.Current.Injects)
	}
	if got.Current.Injects[0].ID != doc.Injects[0].ID {
		t.Errorf("inject id = %q, want %q", got.Current.Injects[0].ID, doc.Injects[0].ID)
	}
	if len(got.History) != 1 || got.History[0].Provenance != session.FullCreation {
		t.Errorf("History = %+v, want one full_creation entry", got.History)
	}
	if !got.LastActivity.Equal(s.LastActivity) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, s.LastActivity)
	}
}

func TestSessionStore_PutOverwritesHistory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	s := newTestSession("s1", time.Now().UTC())
	s.Record(mel.Build([]mel.Inject{{Number: "1"}, {Number: "2"}}, ""), session.FullCreation, 0)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	next, err := mel.Merge(s.Current, []mel.Inject{{Number: "1", Message: "edited"}}, mel.ModeMerge)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	s.Record(next, session.PartialUpdate, 0)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("second Put() error = %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("History length = %d, want 2", len(got.History))
	}
	if got.History[1].Provenance != session.PartialUpdate || got.History[1].Version != 2 {
		t.Errorf("History[1] = %+v", got.History[1])
	}
	if got.Current.Injects[0].Message != "edited" {
		t.Errorf("Current.Injects[0].Message = %q, want edited", got.Current.Injects[0].Message)
	}
}

func TestSessionStore_GetNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get() error = %v, want NOT_FOUND", err)
	}
}

func TestSessionStore_PutRequiresID(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Put(context.Background(), &session.Session{})
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("Put() error = %v, want INVALID_REQUEST", err)
	}
}

func TestSessionStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	store, database := newTestStore(t)

	s := newTestSession("s1", time.Now().UTC())
	s.Record(mel.Build([]mel.Inject{{Number: "1"}}, ""), session.FullCreation, 0)
	if err := store.Put(ctx, s); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var n int
	if err := database.QueryRow("SELECT COUNT(*) FROM mel_history WHERE session_id = 's1'").Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 0 {
		t.Errorf("history rows after delete = %d, want 0", n)
	}

	if err := store.Delete(ctx, "s1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want NOT_FOUND", err)
	}
}

func TestSessionStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		s := newTestSession(id, base.Add(time.Duration(i)*time.Minute))
		if err := store.Put(ctx, s); err != nil {
			t.Fatalf("Put(%s) error = %v", id, err)
		}
	}

	items, total, err := store.List(ctx, 2, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].ID != "c" || items[1].ID != "b" {
		t.Errorf("first page = %+v, want [c b]", items)
	}

	items, _, err = store.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("second page = %+v, want [a]", items)
	}
}

func TestSessionStore_Purge(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	now := time.Now().UTC()

	if err := store.Put(ctx, newTestSession("stale", now.Add(-72*time.Hour))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Put(ctx, newTestSession("fresh", now)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	n, err := store.Purge(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, err := store.Get(ctx, "fresh"); err != nil {
		t.Errorf("fresh session should survive: %v", err)
	}
}
