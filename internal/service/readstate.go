package service

import (
	"context"
	"fmt"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
)

// ReadStateService tracks each member's read cursor.
type ReadStateService struct {
	base
}

// NewReadStateService creates a new read state service.
func NewReadStateService(d Deps) *ReadStateService {
	return &ReadStateService{base: newBase(d, "readstate")}
}

// MarkAsRead moves the caller's read cursor to now. It does nothing when
// the caller is not a member.
func (s *ReadStateService) MarkAsRead(ctx context.Context, conversationID, userID string, lastMessageID *string) error {
	var updated *model.ConversationMember
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := member(ctx, tx, conversationID, userID)
		if err != nil || m == nil {
			return err
		}
		now := s.now()
		cursor := now.UnixNano()
		latest, err := tx.MessagesBefore(ctx, conversationID, nil, 1)
		if err != nil {
			return err
		}
		if len(latest) > 0 && latest[0].CreationTime > cursor {
			cursor = latest[0].CreationTime
		}

		m.LastReadMessageID = lastMessageID
		m.LastReadAt = &now
		m.LastReadCursor = cursor
		updated = m
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}

	if updated != nil {
		s.publish(ctx, &model.ChatEvent{
			Type:           model.EventReadUpdated,
			ConversationID: conversationID,
			UserID:         userID,
			Data: map[string]any{
				"last_read_message_id": updated.LastReadMessageID,
				"last_read_at":         updated.LastReadAt,
			},
			Recipients: []string{userID},
		})
	}
	return nil
}

// UnreadCount counts messages created after the caller's last read, or all
// messages when the caller never read the conversation. Non-members have
// nothing unread.
func (s *ReadStateService) UnreadCount(ctx context.Context, conversationID, userID string) (int64, error) {
	m, err := member(ctx, s.store, conversationID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get membership: %w", err)
	}
	if m == nil {
		return 0, nil
	}
	n, err := unreadCount(ctx, s.store, m)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

func unreadCount(ctx context.Context, store *repository.Store, m *model.ConversationMember) (int64, error) {
	var after *int64
	if m.LastReadAt != nil {
		after = &m.LastReadCursor
	}
	return store.CountMessagesAfter(ctx, m.ConversationID, after)
}
