package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// Identity provider lifecycle events.
const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
	IdentityUserDeleted = "user.deleted"
)

// IdentityEvent is the payload pushed by the identity provider.
type IdentityEvent struct {
	Type string       `json:"type"`
	Data IdentityUser `json:"data"`
}

// IdentityUser is the user object of an identity event.
type IdentityUser struct {
	ID             string         `json:"id"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	FirstName      *string        `json:"first_name"`
	LastName       *string        `json:"last_name"`
	Username       *string        `json:"username"`
	ImageURL       *string        `json:"image_url"`
}

// EmailAddress is one address of an identity user; the first is primary.
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// WebhookHandler syncs profiles from identity provider webhooks.
type WebhookHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(svc *service.UserService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{users: svc, logger: log}
}

// Identity handles POST /webhooks/identity
func (h *WebhookHandler) Identity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event IdentityEvent
	if !decodeJSON(w, r, &event, false) {
		return
	}
	if err := middleware.ValidateUserID(event.Data.ID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := h.logger.With(
		zap.String("event", event.Type),
		zap.String("external_id", event.Data.ID),
	)

	switch event.Type {
	case IdentityUserCreated, IdentityUserUpdated:
		req := &model.UpsertUserRequest{
			ExternalID: event.Data.ID,
			FirstName:  event.Data.FirstName,
			LastName:   event.Data.LastName,
			Username:   event.Data.Username,
			ImageURL:   event.Data.ImageURL,
		}
		if len(event.Data.EmailAddresses) > 0 {
			req.Email = event.Data.EmailAddresses[0].EmailAddress
		}
		if _, err := h.users.Upsert(ctx, req); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		log.Info("user synced")

	case IdentityUserDeleted:
		existed, err := h.users.Delete(ctx, event.Data.ID)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		log.Info("user deleted", zap.Bool("existed", existed))

	default:
		log.Debug("ignoring identity event")
	}

	writeJSON(w, http.StatusOK, successBody)
}
