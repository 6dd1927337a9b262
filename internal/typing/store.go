// Package typing keeps ephemeral typing indicators keyed by conversation
// and user.
package typing

import (
	"context"
	"time"
)

// Store records when users last signalled typing in a conversation.
// Entries are advisory; implementations may drop them once stale.
type Store interface {
	// Touch records that userID typed in conversationID at the given time.
	Touch(ctx context.Context, conversationID, userID string, at time.Time) error
	// Clear removes the user's indicator. Clearing a missing entry is not an error.
	Clear(ctx context.Context, conversationID, userID string) error
	// Active returns users whose last touch is strictly after since, oldest first.
	Active(ctx context.Context, conversationID string, since time.Time) ([]string, error)
}
