// Package model defines data structures for the chat service.
package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// UserStatus is the presence status a user advertises.
type UserStatus string

const (
	UserStatusOnline  UserStatus = "online"
	UserStatusAway    UserStatus = "away"
	UserStatusBusy    UserStatus = "busy"
	UserStatusOffline UserStatus = "offline"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusOnline, UserStatusAway, UserStatusBusy, UserStatusOffline:
		return true
	}
	return false
}

// User is a profile synced from the identity provider. Other records
// refer to users by ExternalID only.
type User struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	ExternalID string     `gorm:"size:128;not null;uniqueIndex" json:"external_id"`
	Email      string     `gorm:"size:320;not null;uniqueIndex" json:"email"`
	FirstName  *string    `gorm:"size:100" json:"first_name,omitempty"`
	LastName   *string    `gorm:"size:100" json:"last_name,omitempty"`
	Username   *string    `gorm:"size:100;index" json:"username,omitempty"`
	ImageURL   *string    `gorm:"size:1024" json:"image_url,omitempty"`
	Bio        *string    `gorm:"size:500" json:"bio,omitempty"`
	IsOnline   bool       `gorm:"not null;index:idx_users_online,priority:1" json:"is_online"`
	LastSeen   time.Time  `gorm:"not null;index:idx_users_online,priority:2" json:"last_seen"`
	Status     UserStatus `gorm:"size:16;not null" json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Case-folded copies of the searchable fields.
	SearchName     string `gorm:"size:201;not null;default:''" json:"-"`
	SearchEmail    string `gorm:"size:320;not null;default:''" json:"-"`
	SearchUsername string `gorm:"size:100;not null;default:''" json:"-"`
}

// Fold case-folds s for search. Database LOWER() is not Unicode-aware on
// every driver, so both stored columns and query terms go through here.
func Fold(s string) string {
	return strings.ToLower(s)
}

// BeforeSave keeps the folded search columns in step with the profile.
func (u *User) BeforeSave(*gorm.DB) error {
	u.RefreshSearch()
	return nil
}

func (u *User) RefreshSearch() {
	var first, last string
	if u.FirstName != nil {
		first = *u.FirstName
	}
	if u.LastName != nil {
		last = *u.LastName
	}
	u.SearchName = Fold(strings.TrimSpace(first + " " + last))
	u.SearchEmail = Fold(u.Email)
	u.SearchUsername = ""
	if u.Username != nil {
		u.SearchUsername = Fold(*u.Username)
	}
}

// DisplayName returns the best human readable name for the user.
func (u *User) DisplayName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.Email
}

// UpsertUserRequest carries the profile fields pushed by identity sync.
type UpsertUserRequest struct {
	ExternalID string  `json:"external_id"`
	Email      string  `json:"email"`
	FirstName  *string `json:"first_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
	Username   *string `json:"username,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

// UpdateProfileRequest lists the profile fields a user may change.
// Nil fields are left untouched.
type UpdateProfileRequest struct {
	FirstName *string     `json:"first_name,omitempty"`
	LastName  *string     `json:"last_name,omitempty"`
	Username  *string     `json:"username,omitempty"`
	Bio       *string     `json:"bio,omitempty"`
	Status    *UserStatus `json:"status,omitempty"`
}

// PresenceRequest sets the caller's online flag.
type PresenceRequest struct {
	IsOnline bool `json:"is_online"`
}
