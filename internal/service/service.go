// Package service implements the chat consistency rules: conversations,
// memberships, messages, reactions, typing and read state.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/pkg/logger"
)

var tracer = otel.Tracer("github.com/chatty-app/chat-service/internal/service")

// Publisher delivers change events to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, event *model.ChatEvent) error
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store     *repository.Store
	Publisher Publisher
	Logger    *logger.Logger
}

type base struct {
	store     *repository.Store
	publisher Publisher
	logger    *logger.Logger
	now       func() time.Time
}

func newBase(d Deps, name string) base {
	log := d.Logger
	if log == nil {
		log = logger.Global()
	}
	return base{
		store:     d.Store,
		publisher: d.Publisher,
		logger:    log.Named(name),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// publish sends a change event after commit. Failures are logged only; the
// mutation it describes has already been committed.
func (b *base) publish(ctx context.Context, event *model.ChatEvent) {
	if b.publisher == nil {
		return
	}
	event.ID = newID()
	event.CreatedAt = b.now()

	if err := b.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		b.logger.Warn("failed to publish change event",
			zap.String("type", string(event.Type)),
			zap.String("conversation_id", event.ConversationID),
			zap.Error(err),
		)
	}
}

// member returns the caller's membership or nil when there is none.
func member(ctx context.Context, tx *repository.Store, conversationID, userID string) (*model.ConversationMember, error) {
	m, err := tx.Member(ctx, conversationID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// conversation returns the conversation or a not-found error.
func conversation(ctx context.Context, tx *repository.Store, conversationID string) (*model.Conversation, error) {
	conv, err := tx.ConversationByID(ctx, conversationID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("conversation not found")
	}
	return conv, err
}

// message returns the message or a not-found error.
func message(ctx context.Context, tx *repository.Store, messageID string) (*model.Message, error) {
	msg, err := tx.MessageByID(ctx, messageID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("message not found")
	}
	return msg, err
}

// requireMember fails with a forbidden error unless userID belongs to the
// conversation.
func requireMember(ctx context.Context, tx *repository.Store, conversationID, userID string) (*model.ConversationMember, error) {
	m, err := member(ctx, tx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, forbidden("not a member of this conversation")
	}
	return m, nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func without(ids []string, exclude string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != exclude {
			out = append(out, id)
		}
	}
	return out
}
