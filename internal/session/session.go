package session

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// Provenance records how a document version was produced.
type Provenance string

const (
	FullCreation    Provenance = "full_creation"
	PartialUpdate   Provenance = "partial_update"
	FullReplacement Provenance = "full_replacement"
	UserEdit        Provenance = "user_edit"
)

// ProvenanceFor classifies a merge of incoming injects into existing.
func ProvenanceFor(existing *mel.Document, mode mel.Mode) Provenance {
	switch {
	case existing.IsEmpty():
		return FullCreation
	case mode == mel.ModeMerge:
		return PartialUpdate
	default:
		return FullReplacement
	}
}

// Message is one turn of the chat conversation.
type Message struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// HistoryEntry is a snapshot of an accepted document version.
type HistoryEntry struct {
	Version    int           `json:"version"`
	Provenance Provenance    `json:"provenance"`
	RecordedAt time.Time     `json:"recorded_at"`
	Document   *mel.Document `json:"document"`
}

// Session is the conversation and document state of one authoring interaction.
type Session struct {
	ID           string         `json:"id"`
	Messages     []Message      `json:"messages"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Current      *mel.Document  `json:"current,omitempty"`
	History      []HistoryEntry `json:"history"`
}

// Summary is the list view of a session.
type Summary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	MessageCount int       `json:"message_count"`
	MelID        string    `json:"mel_id,omitempty"`
	Version      int       `json:"version,omitempty"`
	InjectCount  int       `json:"inject_count"`
}

// New creates an empty session. A ULID is minted when id is empty.
func New(id string) *Session {
	if id == "" {
		id = NewID()
	}
	ts := time.Now().UTC()
	return &Session{
		ID:           id,
		Messages:     []Message{},
		CreatedAt:    ts,
		LastActivity: ts,
		History:      []HistoryEntry{},
	}
}

// NewID returns a timestamp-derived session identifier.
func NewID() string {
	return ulid.Make().String()
}

// Record makes doc the current document and appends a deep copy of it to
// the history. When limit is positive, the oldest entries beyond limit are
// dropped.
func (s *Session) Record(doc *mel.Document, p Provenance, limit int) {
	ts := time.Now().UTC()
	s.History = append(s.History, HistoryEntry{
		Version:    doc.Version,
		Provenance: p,
		RecordedAt: ts,
		Document:   doc.Clone(),
	})
	if limit > 0 && len(s.History) > limit {
		s.History = append([]HistoryEntry(nil), s.History[len(s.History)-limit:]...)
	}
	s.Current = doc
	s.LastActivity = ts
}

// Touch updates the last-activity timestamp.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// Summarize returns the list view of s.
func (s *Session) Summarize() Summary {
	sum := Summary{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		MessageCount: len(s.Messages),
	}
	if s.Current != nil {
		sum.MelID = s.Current.ID
		sum.Version = s.Current.Version
		sum.InjectCount = s.Current.InjectCount
	}
	return sum
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message{}, s.Messages...)
	out.Current = s.Current.Clone()
	out.History = make([]HistoryEntry, len(s.History))
	for i, h := range s.History {
		h.Document = h.Document.Clone()
		out.History[i] = h
	}
	return &out
}
