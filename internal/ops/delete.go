package ops

import (
	"context"
)

// DeleteInput contains parameters for the DeleteSession operation.
type DeleteInput struct {
	SessionID string
}

// DeleteOutput contains the result of the DeleteSession operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// DeleteSession removes a session together with its document history.
func DeleteSession(ctx context.Context, d Deps, input DeleteInput) (*DeleteOutput, error) {
	id, err := requireSessionID(input.SessionID)
	if err != nil {
		return nil, err
	}

	if err := d.Sessions.Delete(ctx, id); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
