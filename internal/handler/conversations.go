// Package handler provides HTTP handlers for the API.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	readState     *service.ReadStateService
	summaries     *service.SummaryService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(
	convSvc *service.ConversationService,
	readSvc *service.ReadStateService,
	summarySvc *service.SummaryService,
	log *logger.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: convSvc,
		readState:     readSvc,
		summaries:     summarySvc,
		logger:        log,
	}
}

// conversationID reads and validates the {id} route parameter.
func conversationID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateConversationID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// Create handles POST /api/v1/conversations
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.CreateConversationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateUserIDs(req.Participants); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name != nil {
		if err := middleware.ValidateName(*req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req.CreatedBy = middleware.GetUserID(ctx)

	id, err := h.conversations.Create(ctx, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateConversationResponse{ConversationID: id})
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.conversations.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// Get handles GET /api/v1/conversations/{id}. A missing conversation yields
// a null body.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	details, err := h.conversations.Get(ctx, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if details != nil && !details.HasMember(middleware.GetUserID(ctx)) {
		writeError(w, http.StatusForbidden, "not a member of this conversation")
		return
	}

	writeJSON(w, http.StatusOK, details)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Name != nil {
		if err := middleware.ValidateName(*req.Name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	conv, err := h.conversations.Update(ctx, id, middleware.GetUserID(ctx), &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// AddParticipants handles POST /api/v1/conversations/{id}/participants
func (h *ConversationHandler) AddParticipants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.AddParticipantsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateUserIDs(req.Participants); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.AddParticipants(ctx, id, req.Participants, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// RemoveParticipant handles DELETE /api/v1/conversations/{id}/participants/{userID}
func (h *ConversationHandler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	target := chi.URLParam(r, "userID")
	if err := middleware.ValidateUserID(target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.RemoveParticipant(ctx, id, target, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// MarkAsRead handles POST /api/v1/conversations/{id}/read
func (h *ConversationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.MarkAsReadRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if req.LastMessageID != nil {
		if err := middleware.ValidateMessageID(*req.LastMessageID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.readState.MarkAsRead(ctx, id, middleware.GetUserID(ctx), req.LastMessageID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// UnreadCount handles GET /api/v1/conversations/{id}/unread
func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	n, err := h.readState.UnreadCount(ctx, id, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"unread_count": n})
}

type toggleFunc func(svc *service.ConversationService, r *http.Request, conversationID, userID string) (bool, error)

// toggle builds the handler of a per-member flag endpoint.
func (h *ConversationHandler) toggle(field string, fn toggleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(w, r)
		if !ok {
			return
		}

		value, err := fn(h.conversations, r, id, middleware.GetUserID(r.Context()))
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"success": true, field: value})
	}
}

// ToggleArchive handles POST /api/v1/conversations/{id}/archive
func (h *ConversationHandler) ToggleArchive() http.HandlerFunc {
	return h.toggle("is_archived", func(s *service.ConversationService, r *http.Request, c, u string) (bool, error) {
		return s.ToggleArchive(r.Context(), c, u)
	})
}

// TogglePin handles POST /api/v1/conversations/{id}/pin
func (h *ConversationHandler) TogglePin() http.HandlerFunc {
	return h.toggle("is_pinned", func(s *service.ConversationService, r *http.Request, c, u string) (bool, error) {
		return s.TogglePin(r.Context(), c, u)
	})
}

// ToggleMute handles POST /api/v1/conversations/{id}/mute
func (h *ConversationHandler) ToggleMute() http.HandlerFunc {
	return h.toggle("is_muted", func(s *service.ConversationService, r *http.Request, c, u string) (bool, error) {
		return s.ToggleMute(r.Context(), c, u)
	})
}

// Summary handles GET /api/v1/conversations/{id}/summary
func (h *ConversationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	resp, err := h.summaries.Summarize(ctx, id, middleware.GetUserID(ctx))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
