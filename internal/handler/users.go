package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// UserHandler handles user directory endpoints.
type UserHandler struct {
	users  *service.UserService
	logger *logger.Logger
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc *service.UserService, log *logger.Logger) *UserHandler {
	return &UserHandler{users: svc, logger: log}
}

// Me handles GET /api/v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.users.Get(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateMe handles PUT /api/v1/users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.UpdateProfileRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	for _, name := range []*string{req.FirstName, req.LastName, req.Username} {
		if name == nil {
			continue
		}
		if err := middleware.ValidateName(*name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	user, err := h.users.UpdateProfile(ctx, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Presence handles POST /api/v1/users/me/presence
func (h *UserHandler) Presence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.PresenceRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	user, err := h.users.UpdateOnlineStatus(ctx, middleware.GetUserID(ctx), req.IsOnline)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Search handles GET /api/v1/users/search?q=&limit=
func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if err := middleware.ValidateSearchQuery(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	users, err := h.users.Search(r.Context(), q, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Online handles GET /api/v1/users/online
func (h *UserHandler) Online(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Online(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}

// Get handles GET /api/v1/users/{userID}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
