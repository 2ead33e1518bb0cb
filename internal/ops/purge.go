package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	OlderThanDays int // required, sessions idle longer than this are removed
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged  int    `json:"purged"`
	Message string `json:"message"`
}

// Purge evicts sessions whose last activity is older than the given number of days.
func Purge(ctx context.Context, d Deps, input PurgeInput) (*PurgeOutput, error) {
	if input.OlderThanDays <= 0 {
		return nil, errors.NewInvalidRequest("older_than_days must be a positive number of days")
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -input.OlderThanDays)
	count, err := d.Sessions.Purge(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	return &PurgeOutput{
		Purged:  count,
		Message: formatPurgeMessage(count, input.OlderThanDays),
	}, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count, olderThanDays int) string {
	if count == 0 {
		return "No idle sessions to purge"
	}

	sessionWord := "session"
	if count > 1 {
		sessionWord = "sessions"
	}

	return fmt.Sprintf("Removed %d %s idle for more than %d days", count, sessionWord, olderThanDays)
}
