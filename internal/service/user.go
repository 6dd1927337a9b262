package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
)

const (
	defaultUserSearchLimit = 10
	maxUserSearchLimit     = 50

	// OnlineWindow is how recently an online user must have been seen.
	OnlineWindow = 5 * time.Minute
)

// UserService is the directory of profiles synced from the identity provider.
type UserService struct {
	base
}

// NewUserService creates a new user service.
func NewUserService(d Deps) *UserService {
	return &UserService{base: newBase(d, "users")}
}

// Upsert creates the profile for an identity or refreshes its fields.
// New profiles start online.
func (s *UserService) Upsert(ctx context.Context, req *model.UpsertUserRequest) (*model.User, error) {
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	req.Email = strings.TrimSpace(req.Email)
	if req.ExternalID == "" || req.Email == "" {
		return nil, invalid("external id and email are required")
	}

	var user *model.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.UserByExternalID(ctx, req.ExternalID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			now := s.now()
			user = &model.User{
				ID:         newID(),
				ExternalID: req.ExternalID,
				Email:      req.Email,
				FirstName:  req.FirstName,
				LastName:   req.LastName,
				Username:   req.Username,
				ImageURL:   req.ImageURL,
				IsOnline:   true,
				LastSeen:   now,
				Status:     model.UserStatusOnline,
			}
			return tx.CreateUser(ctx, user)
		case err != nil:
			return err
		}

		existing.Email = req.Email
		existing.FirstName = req.FirstName
		existing.LastName = req.LastName
		existing.Username = req.Username
		existing.ImageURL = req.ImageURL
		user = existing
		return tx.SaveUser(ctx, existing)
	})
	if repository.IsDuplicate(err) {
		return nil, invalid("email already belongs to another user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	s.logger.Info("user synced", zap.String("external_id", user.ExternalID))
	return user, nil
}

// Delete removes a profile and reports whether it existed.
func (s *UserService) Delete(ctx context.Context, externalID string) (bool, error) {
	deleted, err := s.store.DeleteUserByExternalID(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	if deleted {
		s.logger.Info("user deleted", zap.String("external_id", externalID))
	}
	return deleted, nil
}

// Get returns the profile for an identity.
func (s *UserService) Get(ctx context.Context, externalID string) (*model.User, error) {
	user, err := s.store.UserByExternalID(ctx, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateOnlineStatus marks the user online or offline and stamps LastSeen.
func (s *UserService) UpdateOnlineStatus(ctx context.Context, externalID string, online bool) (*model.User, error) {
	var user *model.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		u, err := tx.UserByExternalID(ctx, externalID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("user not found")
		}
		if err != nil {
			return err
		}

		u.IsOnline = online
		u.LastSeen = s.now()
		u.Status = model.UserStatusOffline
		if online {
			u.Status = model.UserStatusOnline
		}
		user = u
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, wrap(err, "failed to update online status")
	}
	return user, nil
}

// UpdateProfile applies the non-nil fields of req.
func (s *UserService) UpdateProfile(ctx context.Context, externalID string, req *model.UpdateProfileRequest) (*model.User, error) {
	if req.Status != nil && !req.Status.Valid() {
		return nil, invalid("unknown status %q", *req.Status)
	}

	var user *model.User
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		u, err := tx.UserByExternalID(ctx, externalID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("user not found")
		}
		if err != nil {
			return err
		}

		if req.FirstName != nil {
			u.FirstName = req.FirstName
		}
		if req.LastName != nil {
			u.LastName = req.LastName
		}
		if req.Username != nil {
			u.Username = req.Username
		}
		if req.Bio != nil {
			u.Bio = req.Bio
		}
		if req.Status != nil {
			u.Status = *req.Status
		}
		user = u
		return tx.SaveUser(ctx, u)
	})
	if err != nil {
		return nil, wrap(err, "failed to update profile")
	}
	return user, nil
}

// Search finds users by name, email or username. A blank query matches
// nobody.
func (s *UserService) Search(ctx context.Context, query string, limit int) ([]model.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.User{}, nil
	}
	if limit <= 0 {
		limit = defaultUserSearchLimit
	}
	if limit > maxUserSearchLimit {
		limit = maxUserSearchLimit
	}

	users, err := s.store.SearchUsers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return users, nil
}

// Online lists users flagged online and seen within OnlineWindow.
func (s *UserService) Online(ctx context.Context) ([]model.User, error) {
	users, err := s.store.OnlineUsers(ctx, s.now().Add(-OnlineWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return users, nil
}
