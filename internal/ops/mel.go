package ops

import (
	"context"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// EditInput contains parameters for the EditDocument operation.
type EditInput struct {
	SessionID string       // required
	MelID     string       // required, must match the session's current document
	Injects   []mel.Inject // required, full inject list
}

// DocumentOutput is returned by operations that produce a new document version.
type DocumentOutput struct {
	SessionID      string        `json:"session_id"`
	Document       *mel.Document `json:"mel"`
	Provenance     string        `json:"provenance"`
	Action         string        `json:"action"`
	ActionInferred bool          `json:"action_inferred,omitempty"`
	Warnings       []string      `json:"warnings,omitempty"`
}

// EditDocument applies a hand edit of the full inject list as a new version
// tagged user_edit. A mel_id that does not match the session's current
// document fails with NOT_FOUND and leaves the session untouched.
func EditDocument(ctx context.Context, d Deps, input EditInput) (*DocumentOutput, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}
	if input.MelID == "" {
		return nil, errors.NewInvalidRequest("mel_id is required")
	}
	if input.Injects == nil {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}

	sess, err := d.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Current == nil || sess.Current.ID != input.MelID {
		return nil, errors.NewNotFound("mel", input.MelID)
	}

	// Edits always bump the version, even from an emptied document.
	warnings := duplicateWarnings(sess.Current, input.Injects, mel.ModeReplace)
	if len(warnings) > 0 {
		d.Metrics.RecordDuplicateNumbers()
	}
	doc := mel.Replace(sess.Current, input.Injects)
	recordVersion(d, sess, doc, session.UserEdit)

	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	return &DocumentOutput{
		SessionID:  sess.ID,
		Document:   doc,
		Provenance: string(session.UserEdit),
		Action:     string(mel.ModeReplace),
		Warnings:   warnings,
	}, nil
}

// ApplyInput contains parameters for the ApplyInjects operation.
type ApplyInput struct {
	SessionID string       // optional, minted when empty; unknown ids create a session
	Mode      string       // merge, replace, or empty/auto for the length heuristic
	Injects   []mel.Inject // required
}

// ApplyInjects merges or replaces injects in a session without a model turn.
func ApplyInjects(ctx context.Context, d Deps, input ApplyInput) (*DocumentOutput, error) {
	if input.Injects == nil {
		return nil, errors.NewInvalidRequest("injects must be a JSON array of objects")
	}

	sess, err := loadOrCreate(ctx, d.Sessions, input.SessionID)
	if err != nil {
		return nil, err
	}

	existing := sess.Current
	mode, inferred, err := resolveMode(input.Mode, existing, len(input.Injects))
	if err != nil {
		return nil, err
	}
	prov := session.ProvenanceFor(existing, mode)

	doc, warnings, err := applyToSession(d, sess, existing, input.Injects, mode, prov)
	if err != nil {
		return nil, err
	}
	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	return &DocumentOutput{
		SessionID:      sess.ID,
		Document:       doc,
		Provenance:     string(prov),
		Action:         string(mode),
		ActionInferred: inferred,
		Warnings:       warnings,
	}, nil
}
