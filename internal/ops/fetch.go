package ops

import (
	"context"

	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// GetInput contains parameters for the GetSession operation.
type GetInput struct {
	SessionID      string
	IncludeHistory *bool // default: true (nil means default)
}

// GetSession retrieves a session by identifier.
func GetSession(ctx context.Context, d Deps, input GetInput) (*session.Session, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	sess, err := d.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.IncludeHistory != nil && !*input.IncludeHistory {
		sess.History = []session.HistoryEntry{}
	}
	return sess, nil
}
