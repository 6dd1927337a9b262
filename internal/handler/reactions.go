package handler

import (
	"net/http"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// ReactionHandler handles message reaction endpoints.
type ReactionHandler struct {
	reactions *service.ReactionService
	logger    *logger.Logger
}

// NewReactionHandler creates a new reaction handler.
func NewReactionHandler(svc *service.ReactionService, log *logger.Logger) *ReactionHandler {
	return &ReactionHandler{reactions: svc, logger: log}
}

// Add handles PUT /api/v1/messages/{id}/reactions. It replaces any earlier
// reaction of the caller.
func (h *ReactionHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.ReactionRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateEmoji(req.Emoji); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.reactions.Add(ctx, id, middleware.GetUserID(ctx), req.Emoji); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// Remove handles DELETE /api/v1/messages/{id}/reactions
func (h *ReactionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	if err := h.reactions.Remove(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}
