package service

import (
	"context"
	"fmt"
	"time"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/typing"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

// DefaultTypingWindow is how long a typing pulse stays live.
const DefaultTypingWindow = 5 * time.Second

// TypingService records typing pulses. Clients re-send them while the user
// keeps composing.
type TypingService struct {
	base
	typing typing.Store
	window time.Duration
}

// NewTypingService creates a new typing service.
func NewTypingService(d Deps, store typing.Store, window time.Duration) *TypingService {
	if window <= 0 {
		window = DefaultTypingWindow
	}
	return &TypingService{base: newBase(d, "typing"), typing: store, window: window}
}

// Set refreshes or clears the caller's indicator. Only members may type.
func (s *TypingService) Set(ctx context.Context, conversationID, userID string, isTyping bool) error {
	conv, err := conversation(ctx, s.store, conversationID)
	if err != nil {
		return wrap(err, "failed to get conversation")
	}
	if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
		return wrap(err, "failed to check membership")
	}

	state := "stop"
	if isTyping {
		state = "start"
		err = s.typing.Touch(ctx, conversationID, userID, s.now())
	} else {
		err = s.typing.Clear(ctx, conversationID, userID)
	}
	if err != nil {
		return fmt.Errorf("failed to update typing indicator: %w", err)
	}

	metrics.TypingUpdatesTotal.WithLabelValues(state).Inc()
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventTypingUpdated,
		ConversationID: conversationID,
		UserID:         userID,
		Data:           map[string]any{"is_typing": isTyping},
		Recipients:     without(conv.Participants, userID),
	})
	return nil
}

// Users returns the profiles of users typing within the window. Indicators
// of users without a profile are skipped.
func (s *TypingService) Users(ctx context.Context, conversationID string) ([]model.User, error) {
	ids, err := s.typing.Active(ctx, conversationID, s.now().Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("failed to read typing indicators: %w", err)
	}
	users, err := s.store.UsersByExternalIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve typing users: %w", err)
	}

	out := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}
