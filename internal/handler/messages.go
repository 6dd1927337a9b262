package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messages      *service.MessageService
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(
	msgSvc *service.MessageService,
	convSvc *service.ConversationService,
	log *logger.Logger,
) *MessageHandler {
	return &MessageHandler{
		messages:      msgSvc,
		conversations: convSvc,
		logger:        log,
	}
}

// messageID reads and validates the {id} route parameter of /messages.
func messageID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateMessageID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}

	if err := h.conversations.Authorize(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp, err := h.messages.GetMessages(ctx, id, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateAttachments(req.Attachments); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReplyToID != nil {
		if err := middleware.ValidateMessageID(*req.ReplyToID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	req.ConversationID = id
	req.SenderID = middleware.GetUserID(ctx)

	msg, err := h.messages.Send(ctx, &req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, model.SendMessageResponse{MessageID: msg.ID})
}

// Search handles GET /api/v1/conversations/{id}/messages/search
func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := conversationID(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if err := middleware.ValidateSearchQuery(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.conversations.Authorize(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	msgs, err := h.messages.Search(ctx, id, q, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, msgs)
}

// Edit handles PUT /api/v1/messages/{id}
func (h *MessageHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.EditMessageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messages.Edit(ctx, id, middleware.GetUserID(ctx), req.Content)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /api/v1/messages/{id}
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	if err := h.messages.Delete(ctx, id, middleware.GetUserID(ctx)); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, successBody)
}

// Forward handles POST /api/v1/messages/{id}/forward
func (h *MessageHandler) Forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := messageID(w, r)
	if !ok {
		return
	}

	var req model.ForwardMessageRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.messages.Forward(ctx, id, middleware.GetUserID(ctx), req.ConversationID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
