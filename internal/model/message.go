package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeFile     MessageType = "file"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeVideo    MessageType = "video"
	MessageTypeLocation MessageType = "location"
	MessageTypeSystem   MessageType = "system"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile, MessageTypeVoice,
		MessageTypeVideo, MessageTypeLocation, MessageTypeSystem:
		return true
	}
	return false
}

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

// DeletedMessageContent replaces the content of a soft-deleted message.
const DeletedMessageContent = "This message was deleted"

// Attachment describes an uploaded blob referenced by a message.
type Attachment struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	URL      string   `json:"url"`
	Type     string   `json:"type"`
	Size     int64    `json:"size"`
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// Message represents a conversation message.
type Message struct {
	// Identity
	ID             string `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string `gorm:"size:36;not null;index:idx_messages_conv_time,priority:1" json:"conversation_id"`
	SenderID       string `gorm:"size:128;not null;index" json:"sender_id"`

	// Content
	Content     string                          `gorm:"type:text;not null" json:"content"`
	Type        MessageType                     `gorm:"size:16;not null" json:"type"`
	Status      MessageStatus                   `gorm:"size:16;not null;index" json:"status"`
	Attachments datatypes.JSONSlice[Attachment] `json:"attachments,omitempty"`

	// SearchText is Content case-folded for substring search.
	SearchText string `gorm:"type:text" json:"-"`

	// Links
	ReplyToID       *string `gorm:"size:36;index" json:"reply_to_id,omitempty"`
	ForwardedFromID *string `gorm:"size:36" json:"forwarded_from_id,omitempty"`

	// Timestamps. CreationTime (unix nanoseconds) orders conversation history.
	CreatedAt    time.Time  `json:"created_at"`
	CreationTime int64      `gorm:"not null;index:idx_messages_conv_time,priority:2" json:"creation_time"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// BeforeSave keeps the folded search column in step with Content.
func (m *Message) BeforeSave(*gorm.DB) error {
	m.RefreshSearch()
	return nil
}

func (m *Message) RefreshSearch() {
	m.SearchText = Fold(m.Content)
}

// Created returns the creation time derived from the ordering key.
func (m *Message) Created() time.Time {
	return time.Unix(0, m.CreationTime)
}

// IsDeleted reports whether the message was soft-deleted.
func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageReaction is one user's emoji on one message.
type MessageReaction struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"size:36;not null;uniqueIndex:idx_reactions_msg_user,priority:1" json:"message_id"`
	UserID    string    `gorm:"size:128;not null;uniqueIndex:idx_reactions_msg_user,priority:2;index" json:"user_id"`
	Emoji     string    `gorm:"size:64;not null" json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReactionView is the reaction shape embedded in message listings.
type ReactionView struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageView is a message enriched for display.
type MessageView struct {
	Message
	Reactions []ReactionView `json:"reactions"`
	Sender    *User          `json:"sender"`
	ReplyTo   *Message       `json:"reply_to"`
}

// SendMessageRequest is the request to send a new message.
type SendMessageRequest struct {
	ConversationID string       `json:"-"`
	SenderID       string       `json:"-"`
	Content        string       `json:"content"`
	Type           MessageType  `json:"type,omitempty"`
	ReplyToID      *string      `json:"reply_to_id,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// SendMessageResponse is the response after sending a message.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
}

// EditMessageRequest replaces the content of a message.
type EditMessageRequest struct {
	Content string `json:"content"`
}

// ForwardMessageRequest names the conversation a message is copied into.
type ForwardMessageRequest struct {
	ConversationID string `json:"conversation_id"`
}

// ReactionRequest carries the emoji of a reaction.
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// TypingRequest starts or stops the caller's typing indicator.
type TypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// ListMessagesResponse is the response for listing messages.
type ListMessagesResponse struct {
	Messages   []MessageView `json:"messages"`
	HasMore    bool          `json:"has_more"`
	NextCursor *string       `json:"next_cursor"`
}

// SummaryResponse is an LLM digest of recent conversation history.
type SummaryResponse struct {
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary"`
	Model          string `json:"model"`
	MessageCount   int    `json:"message_count"`
}
