package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	natsclient "github.com/chatty-app/chat-service/internal/nats"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

const (
	wsReadDeadline = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadLimit    = int64(4 << 10)
)

// Client frame types.
const (
	FrameTyping = "typing"
	FrameError  = "error"
)

// ClientFrame is a message sent by a WebSocket client.
type ClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ServerFrame is a message pushed to a WebSocket client.
type ServerFrame struct {
	Type  string           `json:"type"`
	Event *model.ChatEvent `json:"event,omitempty"`
	Error string           `json:"error,omitempty"`
}

// WebSocketHandler pushes a user's change events over a WebSocket and
// accepts typing updates from the client.
type WebSocketHandler struct {
	events   Subscriber
	typing   *service.TypingService
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(events Subscriber, typingSvc *service.TypingService, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		events: events,
		typing: typingSvc,
		logger: log,
		upgrader: websocket.Upgrader{
			// Callers authenticate with a bearer token, not cookies.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /api/v1/ws
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	log := middleware.RequestLogger(r.Context(), h.logger)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The request context ends when the handler returns; the connection
	// lives on its own context.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	out := make(chan ServerFrame, 64)
	sub, err := h.events.Subscribe(ctx, natsclient.UserFilter(userID), 0, func(event *model.ChatEvent) {
		select {
		case out <- ServerFrame{Type: string(event.Type), Event: event}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		log.Error("failed to subscribe user feed", zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(wsWriteTimeout))
		return
	}
	defer sub.Stop()

	metrics.IncrementLiveConnections("ws")
	defer metrics.DecrementLiveConnections("ws")
	log.Info("websocket connected")

	go h.writeLoop(ctx, cancel, conn, out, log)
	h.readLoop(ctx, conn, userID, out, log)

	log.Info("websocket disconnected")
}

// readLoop handles client frames until the connection fails.
func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, userID string, out chan<- ServerFrame, log *logger.Logger) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
	})

	for {
		var frame ClientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		var msg string
		switch frame.Type {
		case FrameTyping:
			if err := middleware.ValidateConversationID(frame.ConversationID); err != nil {
				msg = err.Error()
				break
			}
			msg = frameError(h.typing.Set(ctx, frame.ConversationID, userID, frame.IsTyping), log)
		default:
			msg = "unknown frame type"
		}
		if msg == "" {
			continue
		}

		select {
		case out <- ServerFrame{Type: FrameError, Error: msg}:
		case <-ctx.Done():
			return
		}
	}
}

// frameError is the client-facing text for err. Infrastructure failures are
// logged and hidden.
func frameError(err error, log *logger.Logger) string {
	if err == nil {
		return ""
	}
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return svcErr.Error()
	}
	log.Error("websocket frame failed", zap.Error(err))
	return "internal error"
}

// writeLoop is the connection's only writer.
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan ServerFrame, log *logger.Logger) {
	defer cancel()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				conn.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
