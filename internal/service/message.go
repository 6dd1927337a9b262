package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/internal/typing"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

const (
	defaultPageSize    = 50
	maxPageSize        = 100
	defaultSearchLimit = 20

	// DefaultEditWindow is how long a sender may edit a message.
	DefaultEditWindow = 48 * time.Hour
)

// MessageService handles message operations.
type MessageService struct {
	base
	typing     typing.Store
	editWindow time.Duration

	// lastCreation keeps creation times strictly increasing in this process.
	lastCreation atomic.Int64
}

// NewMessageService creates a new message service. Sending a message clears
// the sender's indicator in typingStore.
func NewMessageService(d Deps, typingStore typing.Store, editWindow time.Duration) *MessageService {
	if editWindow <= 0 {
		editWindow = DefaultEditWindow
	}
	return &MessageService{
		base:       newBase(d, "messages"),
		typing:     typingStore,
		editWindow: editWindow,
	}
}

func (s *MessageService) nextCreationTime(now time.Time) int64 {
	for {
		last := s.lastCreation.Load()
		next := now.UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.lastCreation.CompareAndSwap(last, next) {
			return next
		}
	}
}

// GetMessages returns one page of history, oldest first. cursor is the
// creation time of the oldest message of the previous page; an empty cursor
// starts from the newest message.
func (s *MessageService) GetMessages(ctx context.Context, conversationID string, limit int, cursor string) (*model.ListMessagesResponse, error) {
	ctx, span := tracer.Start(ctx, "MessageService.GetMessages")
	defer span.End()

	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var before *int64
	if cursor != "" {
		v, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, invalid("invalid cursor")
		}
		before = &v
	}

	page, err := s.store.MessagesBefore(ctx, conversationID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	views, err := s.views(ctx, page)
	if err != nil {
		return nil, err
	}

	resp := &model.ListMessagesResponse{
		Messages: make([]model.MessageView, 0, len(views)),
		HasMore:  len(page) == limit,
	}
	if resp.HasMore {
		next := strconv.FormatInt(page[len(page)-1].CreationTime, 10)
		resp.NextCursor = &next
	}
	for i := len(views) - 1; i >= 0; i-- {
		resp.Messages = append(resp.Messages, views[i])
	}
	span.SetAttributes(attribute.Int("messages", len(resp.Messages)))
	return resp, nil
}

// views enriches messages with reactions, sender profile and reply target.
func (s *MessageService) views(ctx context.Context, msgs []model.Message) ([]model.MessageView, error) {
	ids := make([]string, 0, len(msgs))
	senders := make([]string, 0, len(msgs))
	var replyIDs []string
	for _, m := range msgs {
		ids = append(ids, m.ID)
		senders = append(senders, m.SenderID)
		if m.ReplyToID != nil {
			replyIDs = append(replyIDs, *m.ReplyToID)
		}
	}

	reactions, err := s.store.ReactionsForMessages(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load reactions: %w", err)
	}
	users, err := s.store.UsersByExternalIDs(ctx, senders)
	if err != nil {
		return nil, fmt.Errorf("failed to load senders: %w", err)
	}
	replies, err := s.store.MessagesByIDs(ctx, replyIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load reply targets: %w", err)
	}

	views := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		v := model.MessageView{
			Message:   m,
			Reactions: make([]model.ReactionView, 0, len(reactions[m.ID])),
			Sender:    users[m.SenderID],
		}
		for _, r := range reactions[m.ID] {
			v.Reactions = append(v.Reactions, model.ReactionView{UserID: r.UserID, Emoji: r.Emoji, CreatedAt: r.CreatedAt})
		}
		if m.ReplyToID != nil {
			v.ReplyTo = replies[*m.ReplyToID]
		}
		views = append(views, v)
	}
	return views, nil
}

// Send stores a new message from a member and updates the conversation's
// last-message cache in the same transaction.
func (s *MessageService) Send(ctx context.Context, req *model.SendMessageRequest) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Send")
	defer span.End()

	if req.Type == "" {
		req.Type = model.MessageTypeText
	}
	if !req.Type.Valid() {
		return nil, invalid("unknown message type %q", req.Type)
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return nil, invalid("message content is required")
	}

	var (
		msg        *model.Message
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		conv, err := conversation(ctx, tx, req.ConversationID)
		if err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, req.ConversationID, req.SenderID); err != nil {
			return err
		}
		if req.ReplyToID != nil {
			target, err := message(ctx, tx, *req.ReplyToID)
			if err != nil {
				return err
			}
			if target.ConversationID != req.ConversationID {
				return notFound("reply target not found")
			}
		}

		msg = s.newMessage(req.ConversationID, req.SenderID, req.Content, req.Type, req.Attachments)
		msg.ReplyToID = req.ReplyToID
		recipients = conv.Participants
		return s.insert(ctx, tx, msg)
	})
	if err != nil {
		return nil, wrap(err, "failed to send message")
	}

	s.clearTyping(ctx, req.ConversationID, req.SenderID)
	s.sent(ctx, msg, recipients)
	return msg, nil
}

func (s *MessageService) newMessage(conversationID, senderID, content string, typ model.MessageType, attachments []model.Attachment) *model.Message {
	now := s.now()
	msg := &model.Message{
		ID:             newID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Type:           typ,
		Status:         model.MessageStatusSent,
		CreatedAt:      now,
		CreationTime:   s.nextCreationTime(now),
	}
	if len(attachments) > 0 {
		msg.Attachments = datatypes.NewJSONSlice(attachments)
	}
	return msg
}

func (s *MessageService) insert(ctx context.Context, tx *repository.Store, msg *model.Message) error {
	if err := tx.CreateMessage(ctx, msg); err != nil {
		return err
	}
	return tx.TouchLastMessage(ctx, msg.ConversationID, msg.ID, msg.CreatedAt)
}

func (s *MessageService) clearTyping(ctx context.Context, conversationID, userID string) {
	if s.typing == nil {
		return
	}
	if err := s.typing.Clear(ctx, conversationID, userID); err != nil {
		s.logger.Warn("failed to clear typing indicator",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (s *MessageService) sent(ctx context.Context, msg *model.Message, recipients []string) {
	metrics.MessagesTotal.WithLabelValues(string(msg.Type)).Inc()
	s.logger.Debug("message sent",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
	)
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventMessageCreated,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserID:         msg.SenderID,
		Data:           msg,
		Recipients:     recipients,
	})
}

// Edit replaces the content of the caller's own message. Edits are refused
// once the message is older than the edit window or has been deleted.
func (s *MessageService) Edit(ctx context.Context, messageID, userID, content string) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Edit")
	defer span.End()

	if strings.TrimSpace(content) == "" {
		return nil, invalid("message content is required")
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
		if m.SenderID != userID {
			return forbidden("can only edit your own messages")
		}
		if m.IsDeleted() {
			return policy("cannot edit a deleted message")
		}
		now := s.now()
		if now.Sub(m.Created()) > s.editWindow {
			return policy("message is too old to edit")
		}

		m.Content = content
		m.EditedAt = &now
		msg = m
		if recipients, err = participants(ctx, tx, m.ConversationID); err != nil {
			return err
		}
		return tx.SaveMessage(ctx, m)
	})
	if err != nil {
		return nil, wrap(err, "failed to edit message")
	}

	metrics.MessageMutationsTotal.WithLabelValues("edit").Inc()
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventMessageUpdated,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserID:         userID,
		Data:           msg,
		Recipients:     recipients,
	})
	return msg, nil
}

// Delete soft-deletes a message. The sender and conversation admins may
// delete; deleting an already deleted message succeeds without change.
func (s *MessageService) Delete(ctx context.Context, messageID, userID string) error {
	ctx, span := tracer.Start(ctx, "MessageService.Delete")
	defer span.End()

	var (
		msg        *model.Message
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		m, err := message(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if m.SenderID != userID {
			caller, err := member(ctx, tx, m.ConversationID, userID)
			if err != nil {
				return err
			}
			if !caller.IsAdmin() {
				return forbidden("cannot delete this message")
			}
		}
		if m.IsDeleted() {
			return nil
		}

		now := s.now()
		m.Content = model.DeletedMessageContent
		m.Attachments = nil
		m.DeletedAt = &now
		msg = m
		if recipients, err = participants(ctx, tx, m.ConversationID); err != nil {
			return err
		}
		return tx.SaveMessage(ctx, m)
	})
	if err != nil {
		return wrap(err, "failed to delete message")
	}
	if msg == nil {
		return nil
	}

	metrics.MessageMutationsTotal.WithLabelValues("delete").Inc()
	s.publish(ctx, &model.ChatEvent{
		Type:           model.EventMessageDeleted,
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		UserID:         userID,
		Recipients:     recipients,
	})
	return nil
}

// Search returns live messages containing term, ignoring case, newest
// first. A blank term matches nothing.
func (s *MessageService) Search(ctx context.Context, conversationID, term string, limit int) ([]model.Message, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []model.Message{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	msgs, err := s.store.SearchMessages(ctx, conversationID, term, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return msgs, nil
}

// Forward copies a message into another conversation. The caller must be a
// member of both conversations.
func (s *MessageService) Forward(ctx context.Context, messageID, userID, targetConversationID string) (*model.Message, error) {
	ctx, span := tracer.Start(ctx, "MessageService.Forward")
	defer span.End()

	var (
		msg        *model.Message
		recipients []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		src, err := message(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, src.ConversationID, userID); err != nil {
			return err
		}
		if src.IsDeleted() {
			return policy("cannot forward a deleted message")
		}
		target, err := conversation(ctx, tx, targetConversationID)
		if err != nil {
			return err
		}
		if _, err := requireMember(ctx, tx, targetConversationID, userID); err != nil {
			return err
		}

		msg = s.newMessage(targetConversationID, userID, src.Content, src.Type, src.Attachments)
		msg.ForwardedFromID = &src.ID
		recipients = target.Participants
		return s.insert(ctx, tx, msg)
	})
	if err != nil {
		return nil, wrap(err, "failed to forward message")
	}

	s.sent(ctx, msg, recipients)
	return msg, nil
}

func participants(ctx context.Context, tx *repository.Store, conversationID string) ([]string, error) {
	parts, err := tx.Participants(ctx, []string{conversationID})
	if err != nil {
		return nil, err
	}
	return parts[conversationID], nil
}
