package model

import (
	"time"
)

// MemberRole is the role of a member inside a conversation.
type MemberRole string

const (
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// Conversation represents a 1:1 or group conversation.
type Conversation struct {
	ID      string  `gorm:"primaryKey;size:36" json:"id"`
	Name    *string `gorm:"size:100" json:"name,omitempty"`
	IsGroup bool    `gorm:"not null" json:"is_group"`

	// DirectKey is the sorted participant pair of a 1:1 conversation.
	// Null for groups.
	DirectKey *string `gorm:"size:300;uniqueIndex" json:"-"`

	LastMessageID   *string   `gorm:"size:36" json:"last_message_id,omitempty"`
	LastMessageTime time.Time `gorm:"not null;index" json:"last_message_time"`
	CreatedBy       string    `gorm:"size:128;not null;index" json:"created_by"`
	ImageURL        *string   `gorm:"size:1024" json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Participants is derived from membership rows on read.
	Participants []string `gorm:"-" json:"participants"`
}

// ConversationMember links one user to one conversation.
type ConversationMember struct {
	ID                uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	ConversationID    string     `gorm:"size:36;not null;uniqueIndex:idx_members_conv_user,priority:1" json:"conversation_id"`
	UserID            string     `gorm:"size:128;not null;uniqueIndex:idx_members_conv_user,priority:2;index" json:"user_id"`
	Role              MemberRole `gorm:"size:16;not null" json:"role"`
	JoinedAt          time.Time  `gorm:"not null" json:"joined_at"`
	LastReadMessageID *string    `gorm:"size:36" json:"last_read_message_id,omitempty"`
	LastReadAt        *time.Time `json:"last_read_at,omitempty"`
	// LastReadCursor is the message ordering key the member has read up to.
	LastReadCursor int64 `gorm:"not null;default:0" json:"-"`
	IsMuted        bool  `gorm:"not null" json:"is_muted"`
	IsPinned       bool  `gorm:"not null" json:"is_pinned"`
	IsArchived     bool  `gorm:"not null" json:"is_archived"`
}

// IsAdmin reports whether the member holds the admin role.
func (m *ConversationMember) IsAdmin() bool {
	return m != nil && m.Role == RoleAdmin
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	CreatedBy    string   `json:"-"`
	Participants []string `json:"participants"`
	Name         *string  `json:"name,omitempty"`
	IsGroup      bool     `json:"is_group"`
	ImageURL     *string  `json:"image_url,omitempty"`
}

// CreateConversationResponse is returned after a create call.
type CreateConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

// UpdateConversationRequest lists the mutable conversation fields.
// Nil fields are left untouched.
type UpdateConversationRequest struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"image_url,omitempty"`
}

// AddParticipantsRequest is the request to add group participants.
type AddParticipantsRequest struct {
	Participants []string `json:"participants"`
}

// MarkAsReadRequest moves the caller's read cursor.
type MarkAsReadRequest struct {
	LastMessageID *string `json:"last_message_id,omitempty"`
}

// ConversationListItem is one entry of a user's conversation list.
type ConversationListItem struct {
	Conversation
	LastMessage *Message           `json:"last_message"`
	UnreadCount int64              `json:"unread_count"`
	Membership  ConversationMember `json:"membership"`
}

// MemberView is a membership with its resolved profile.
type MemberView struct {
	ConversationMember
	User *User `json:"user"`
}

// ConversationDetails is a conversation with its members.
type ConversationDetails struct {
	Conversation
	Members []MemberView `json:"members"`
}

// HasMember reports whether userID is among the members.
func (d *ConversationDetails) HasMember(userID string) bool {
	for _, m := range d.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

// SuccessResponse is the generic mutation acknowledgement.
type SuccessResponse struct {
	Success bool `json:"success"`
}
