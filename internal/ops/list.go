package ops

import (
	"context"

	"github.com/Waaajid/chatbotwiteditrequests/internal/session"
)

// ListInput contains parameters for the ListSessions operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the ListSessions operation.
type ListOutput struct {
	Items      []session.Summary `json:"items"`
	Pagination Pagination        `json:"pagination"`
	Sort       string            `json:"sort"`
}

// ListSessions retrieves session summaries with pagination.
func ListSessions(ctx context.Context, d Deps, input ListInput) (*ListOutput, error) {
	limit, offset := normalizePage(input.Limit, input.Offset)

	summaries, total, err := d.Sessions.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	// Ensure we return an empty array rather than nil
	if summaries == nil {
		summaries = []session.Summary{}
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "last_activity_desc",
	}, nil
}
