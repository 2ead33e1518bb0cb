package ops

import (
	"context"
	"strings"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
	"github.com/Waaajid/chatbotwiteditrequests/internal/mel"
	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// SaveInput contains parameters for the SaveSession operation.
type SaveInput struct {
	SessionID string            // required
	Messages  []session.Message // replaces the stored conversation
	Current   *mel.Document     // optional, replaces the current document as-is
}

// SaveOutput contains the result of the SaveSession operation.
type SaveOutput struct {
	ID      string          `json:"id"`
	Created bool            `json:"created"`
	Summary session.Summary `json:"summary"`
}

// SaveSession writes a session with plain key-value semantics. Concurrent
// saves to the same identifier are last-write-wins. The stored history is
// kept; a supplied document becomes current without a version bump.
func SaveSession(ctx context.Context, d Deps, input SaveInput) (*SaveOutput, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	created := false
	sess, err := d.Sessions.Get(ctx, id)
	if errors.Is(err, errors.ErrNotFound) {
		sess, created = session.New(id), true
	} else if err != nil {
		return nil, err
	}

	messages := make([]session.Message, 0, len(input.Messages))
	for _, m := range input.Messages {
		role := strings.TrimSpace(m.Role)
		if role == "" {
			return nil, errors.NewInvalidRequest("message role must not be empty")
		}
		messages = append(messages, session.Message{Role: role, Content: m.Content})
	}
	sess.Messages = messages

	if input.Current != nil {
		sess.Current = input.Current.Clone()
	}
	sess.Touch()

	if err := d.Sessions.Put(ctx, sess); err != nil {
		return nil, err
	}

	return &SaveOutput{
		ID:      sess.ID,
		Created: created,
		Summary: sess.Summarize(),
	}, nil
}
