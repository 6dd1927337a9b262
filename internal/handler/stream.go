package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	natsclient "github.com/chatty-app/chat-service/internal/nats"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

const defaultHeartbeat = 30 * time.Second

// Subscriber replays and follows change events from the event stream.
type Subscriber interface {
	Subscribe(ctx context.Context, filter string, afterSequence uint64, handler natsclient.EventHandler) (*natsclient.Subscription, error)
}

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	events        Subscriber
	conversations *service.ConversationService
	logger        *logger.Logger
	heartbeat     time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(events Subscriber, convSvc *service.ConversationService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		events:        events,
		conversations: convSvc,
		logger:        log,
		heartbeat:     defaultHeartbeat,
	}
}

// afterSequence reads the resume point from ?after_sequence or the
// Last-Event-ID header set by reconnecting EventSource clients.
func afterSequence(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("after_sequence")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// Stream handles GET /api/v1/conversations/{id}/stream
// Supports ?after_sequence=N for resuming from a specific point. Events from
// before the caller joined are not replayed, and the stream ends once the
// caller is removed from the conversation.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID, ok := conversationID(w, r)
	if !ok {
		return
	}
	after, err := afterSequence(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after_sequence")
		return
	}

	membership, err := h.conversations.Membership(ctx, conversationID, userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	joinedAt := membership.JoinedAt

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events := make(chan *model.ChatEvent, 64)
	sub, err := h.events.Subscribe(ctx, natsclient.ConversationFilter(conversationID), after, func(event *model.ChatEvent) {
		if event.CreatedAt.Before(joinedAt) {
			return
		}
		select {
		case events <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer sub.Stop()

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	metrics.IncrementLiveConnections("sse")
	defer metrics.DecrementLiveConnections("sse")

	log := middleware.RequestLogger(ctx, h.logger).With(zap.String("conversation_id", conversationID))
	log.Info("SSE client connected", zap.Uint64("after_sequence", after))

	sendSSEEvent(w, flusher, 0, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case event := <-events:
			if err := sendSSEEvent(w, flusher, event.Sequence, string(event.Type), event); err != nil {
				log.Warn("failed to write event", zap.Error(err))
				return
			}
			if event.Type == model.EventParticipantRemoved {
				if err := h.conversations.Authorize(ctx, conversationID, userID); err != nil {
					log.Info("SSE client left conversation", zap.Error(err))
					return
				}
			}

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, 0, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, id uint64, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id > 0 {
		fmt.Fprintf(w, "id: %d\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	flusher.Flush()

	return nil
}
