package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/pkg/logger"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

const (
	// StreamName is the name of the chat change-event stream.
	StreamName = "CHAT_EVENTS"

	// SubjectPrefix is the prefix for all chat subjects.
	SubjectPrefix = "chat"
)

// StreamManager publishes and replays chat change events.
type StreamManager struct {
	client *Client
	logger *logger.Logger
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client, log *logger.Logger) *StreamManager {
	return &StreamManager{client: client, logger: log}
}

// EnsureStream ensures the event stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat change events for live subscribers",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// ConversationSubject returns the subject of an event in a conversation.
func ConversationSubject(conversationID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.conv.%s.%s", SubjectPrefix, conversationID, eventType)
}

// UserSubject returns the subject of an event delivered to one user.
func UserSubject(userID string, eventType model.EventType) string {
	return fmt.Sprintf("%s.user.%s.%s", SubjectPrefix, userID, eventType)
}

// ConversationFilter matches every event of a conversation.
func ConversationFilter(conversationID string) string {
	return fmt.Sprintf("%s.conv.%s.>", SubjectPrefix, conversationID)
}

// UserFilter matches every event delivered to a user.
func UserFilter(userID string) string {
	return fmt.Sprintf("%s.user.%s.>", SubjectPrefix, userID)
}

// Publish sends the event to its conversation subject and to the personal
// subject of every recipient. The event's Sequence is set from the
// conversation publish ack.
func (m *StreamManager) Publish(ctx context.Context, event *model.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	js := m.client.JetStream()
	var errs []error

	ack, err := js.Publish(ctx, ConversationSubject(event.ConversationID, event.Type), data)
	if err != nil {
		errs = append(errs, fmt.Errorf("failed to publish conversation event: %w", err))
	} else {
		event.Sequence = ack.Sequence
	}

	for _, userID := range event.Recipients {
		if _, err := js.Publish(ctx, UserSubject(userID, event.Type), data); err != nil {
			errs = append(errs, fmt.Errorf("failed to publish event to user %s: %w", userID, err))
		}
	}

	err = errors.Join(errs...)
	metrics.RecordEvent(string(event.Type), err)
	return err
}

// Subscription is a live event subscription.
type Subscription struct {
	cc jetstream.ConsumeContext
}

// Stop ends the subscription.
func (s *Subscription) Stop() {
	if s == nil || s.cc == nil {
		return
	}
	s.cc.Stop()
}

// EventHandler receives decoded events in stream order.
type EventHandler func(event *model.ChatEvent)

// Subscribe delivers events matching filter to handler. With afterSequence
// set, events after that stream sequence are replayed first; otherwise only
// new events are delivered.
func (m *StreamManager) Subscribe(ctx context.Context, filter string, afterSequence uint64, handler EventHandler) (*Subscription, error) {
	cfg := jetstream.OrderedConsumerConfig{
		FilterSubjects:    []string{filter},
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: 5 * time.Minute,
	}
	if afterSequence > 0 {
		cfg.DeliverPolicy = jetstream.DeliverByStartSequencePolicy
		cfg.OptStartSeq = afterSequence + 1
	}

	consumer, err := m.client.JetStream().OrderedConsumer(ctx, StreamName, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event model.ChatEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.logger.Warn("dropping undecodable event",
				zap.String("subject", msg.Subject()),
				zap.Error(err),
			)
			return
		}
		if meta, err := msg.Metadata(); err == nil {
			event.Sequence = meta.Sequence.Stream
		}
		handler(&event)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to consume: %w", err)
	}

	return &Subscription{cc: cc}, nil
}
