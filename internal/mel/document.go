package mel

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// now is the clock used for provenance timestamps.
var now = func() time.Time { return time.Now().UTC() }

// Document is a versioned Message Exercise List.
type Document struct {
	// ID is assigned once at creation and carried across versions.
	ID string `json:"id"`

	// Version starts at 1 and increases by exactly one per accepted change.
	Version int `json:"version"`

	// CreatedAt is when version 1 was built.
	CreatedAt time.Time `json:"created_at"`

	// Timestamp is when the current version was produced.
	Timestamp time.Time `json:"timestamp"`

	// Injects is in table display order.
	Injects []Inject `json:"injects"`

	// InjectCount caches len(Injects).
	InjectCount int `json:"inject_count"`

	Events []Event `json:"events"`
}

// IsEmpty reports whether d is nil or holds no injects.
func (d *Document) IsEmpty() bool {
	return d == nil || len(d.Injects) == 0
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.Injects = make([]Inject, len(d.Injects))
	for i, in := range d.Injects {
		out.Injects[i] = in.Clone()
	}
	out.Events = append([]Event(nil), d.Events...)
	if out.Events == nil {
		out.Events = []Event{}
	}
	return &out
}

// Build creates version 1 of a document from injects.
//
// A fresh document ID is generated unless existingID is non-empty. Injects
// without an ID get one; IDs already present are kept. Every inject is
// stamped with the document ID, its input position and the build time.
func Build(injects []Inject, existingID string) *Document {
	ts := now()
	docID := existingID
	if docID == "" {
		docID = NewDocumentID()
	}

	out := make([]Inject, len(injects))
	for i, in := range injects {
		in = in.Clone()
		if in.ID == "" {
			in.ID = NewInjectID()
		}
		if in.To == "" {
			in.To = DefaultRecipient
		}
		in.MelID = docID
		in.OriginalIndex = i
		in.LastModified = ts
		out[i] = in
	}

	return &Document{
		ID:          docID,
		Version:     1,
		CreatedAt:   ts,
		Timestamp:   ts,
		Injects:     out,
		InjectCount: len(out),
		Events:      BuildEvents(out),
	}
}

// NewDocumentID returns a random document identifier.
func NewDocumentID() string {
	return uuid.NewString()
}

// NewInjectID returns a new time-ordered inject identifier.
func NewInjectID() string {
	return ulid.Make().String()
}
