package service

import (
	"context"
	"errors"
	"strings"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

// ReactionService keeps at most one emoji per user per message.
type ReactionService struct {
	base
}

// NewReactionService creates a new reaction service.
func NewReactionService(d Deps) *ReactionService {
	return &ReactionService{base: newBase(d, "reactions")}
}

// Add sets the caller's reaction on a message, replacing a previous emoji.
func (s *ReactionService) Add(ctx context.Context, messageID, userID, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return invalid("emoji is required")
	}

	var (
		msg        *model.Message
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := message(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, m.ConversationID, userID); err != nil {
			return err
		}

		now := s.now()
		msg = m
		if recipients, err = participants(ctx, tx, m.ConversationID); err != nil {
			return err
		}
		return tx.UpsertReaction(ctx, &model.MessageReaction{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return wrap(err, "failed to add reaction")
	}

	metrics.ReactionsTotal.WithLabelValues("add").Inc()
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventReactionAdded,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Data:           map[string]any{"emoji": emoji},
		Recipients:     recipients,
	})
	return nil
}

// Remove deletes the caller's reaction. Removing a missing reaction is a
// no-op.
func (s *ReactionService) Remove(ctx context.Context, messageID, userID string) error {
	var (
		msg        *model.Message
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		removed, err := tx.DeleteReaction(ctx, messageID, userID)
		if err != nil || !removed {
			return err
		}
		m, err := tx.MessageByID(ctx, messageID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		msg = m
		recipients, err = participants(ctx, tx, m.ConversationID)
		return err
	})
	if err != nil {
		return wrap(err, "failed to remove reaction")
	}
	if msg == nil {
		return nil
	}

	metrics.ReactionsTotal.WithLabelValues("remove").Inc()
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventReactionRemoved,
		ConversationID: msg.ConversationID,
		MessageID:      messageID,
		UserID:         userID,
		Recipients:     recipients,
	})
	return nil
}
