package middleware

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/chatty-app/chat-service/internal/model"
)

const (
	MaxContentLength     = 4000
	MaxAttachments       = 10
	MaxAttachmentSize    = 25 << 20
	MaxUserIDLength      = 128
	MaxEmojiLength       = 64
	MaxNameLength        = 100
	MaxSearchQueryLength = 200
)

// ValidateMessageContent validates message content. Empty content is
// allowed here; whether a message needs text depends on its attachments.
func ValidateMessageContent(content string) error {
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("content exceeds %d characters", MaxContentLength)
	}
	return nil
}

// ValidateAttachments checks attachment count, size and URLs.
func ValidateAttachments(attachments []model.Attachment) error {
	if len(attachments) > MaxAttachments {
		return fmt.Errorf("at most %d attachments allowed", MaxAttachments)
	}
	for i, a := range attachments {
		if a.ID == "" || a.Name == "" {
			return fmt.Errorf("attachment %d: id and name are required", i)
		}
		if a.Size < 0 || a.Size > MaxAttachmentSize {
			return fmt.Errorf("attachment %d: size out of range", i)
		}
		u, err := url.Parse(a.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("attachment %d: invalid url", i)
		}
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateMessageID validates a message ID.
func ValidateMessageID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid message ID format")
	}
	return nil
}

// ValidateUserID validates an external user id. User ids become NATS
// subject tokens, so wildcard and separator characters are rejected.
func ValidateUserID(id string) error {
	if id == "" {
		return errors.New("user ID cannot be empty")
	}
	if len(id) > MaxUserIDLength {
		return errors.New("user ID exceeds maximum length")
	}
	if strings.ContainsAny(id, ".*>") || strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return errors.New("user ID contains invalid characters")
	}
	return nil
}

// ValidateUserIDs validates every id in ids.
func ValidateUserIDs(ids []string) error {
	for _, id := range ids {
		if err := ValidateUserID(id); err != nil {
			return fmt.Errorf("%q: %w", id, err)
		}
	}
	return nil
}

// ValidateEmoji validates a reaction emoji.
func ValidateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return errors.New("emoji cannot be empty")
	}
	if len(emoji) > MaxEmojiLength || !utf8.ValidString(emoji) {
		return errors.New("invalid emoji")
	}
	return nil
}

// ValidateName validates a display or group name.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("name exceeds %d characters", MaxNameLength)
	}
	return nil
}

// ValidateSearchQuery validates a free-text search query.
func ValidateSearchQuery(q string) error {
	if utf8.RuneCountInString(q) > MaxSearchQueryLength {
		return errors.New("search query too long")
	}
	return nil
}
