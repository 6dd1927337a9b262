package model

import (
	"time"
)

// EventType represents the type of change event.
type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventConversationUpdated EventType = "conversation.updated"
	EventParticipantsAdded   EventType = "participants.added"
	EventParticipantRemoved  EventType = "participant.removed"
	EventMessageCreated      EventType = "message.created"
	EventMessageUpdated      EventType = "message.updated"
	EventMessageDeleted      EventType = "message.deleted"
	EventReactionAdded       EventType = "reaction.added"
	EventReactionRemoved     EventType = "reaction.removed"
	EventTypingUpdated       EventType = "typing.updated"
	EventReadUpdated         EventType = "read.updated"
	EventMembershipUpdated   EventType = "membership.updated"
)

// ChatEvent tells live subscribers that a conversation changed.
type ChatEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	// Recipients are the users whose personal feeds receive the event.
	Recipients []string `json:"-"`

	// JetStream Metadata (populated on read)
	Sequence uint64 `json:"sequence,omitempty"`
}

// HeartbeatEvent represents a heartbeat event.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
