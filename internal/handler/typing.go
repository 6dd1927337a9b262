package handler

import (
	"net/http"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// TypingHandler handles typing indicator endpoints.
type TypingHandler struct {
	typing        *service.TypingService
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewTypingHandler creates a new typing handler.
func NewTypingHandler(typingSvc *service.TypingService, convSvc *service.ConversationService, log *logger.Logger) *TypingHandler {
	return &TypingHandler{typing: typingSvc, conversations: convSvc, logger: log}
}

// Set handles POST /api/v1/conversations/{id}/typing
func (h *TypingHandler) Set(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.TypingRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}

	if err := h.typing.Set(ctx, id, middleware.GetUserID(ctx), req.IsTyping); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// List handles GET /api/v1/conversations/{id}/typing
func (h *TypingHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	if err := h.conversations.Authorize(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	users, err := h.typing.Users(ctx, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
