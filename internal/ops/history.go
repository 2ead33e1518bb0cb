package ops

import (
	"context"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	SessionID        string
	IncludeDocuments bool
}

// VersionSummary describes one recorded document version.
type VersionSummary struct {
	Version     int           `json:"version"`
	Provenance  string        `json:"provenance"`
	RecordedAt  time.Time     `json:"recorded_at"`
	MelID       string        `json:"mel_id"`
	InjectCount int           `json:"inject_count"`
	Document    *mel.Document `json:"mel,omitempty"`
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	SessionID string           `json:"session_id"`
	Versions  []VersionSummary `json:"versions"`
	Current   int              `json:"current_version"`
}

// History lists the document versions recorded for a session, oldest first.
func History(ctx context.Context, d Deps, input HistoryInput) (*HistoryOutput, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	sess, err := d.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	out := &HistoryOutput{
		SessionID: sess.ID,
		Versions:  make([]VersionSummary, 0, len(sess.History)),
	}
	if sess.Current != nil {
		out.Current = sess.Current.Version
	}
	for _, h := range sess.History {
		v := VersionSummary{
			Version:    h.Version,
			Provenance: string(h.Provenance),
			RecordedAt: h.RecordedAt,
		}
		if h.Document != nil {
			v.MelID = h.Document.ID
			v.InjectCount = h.Document.InjectCount
			if input.IncludeDocuments {
				v.Document = h.Document
			}
		}
		out.Versions = append(out.Versions, v)
	}
	return out, nil
}
