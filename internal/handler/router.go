package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

// Services are the domain services the API exposes.
type Services struct {
	Users         *service.UserService
	Conversations *service.ConversationService
	ReadState     *service.ReadStateService
	Messages      *service.MessageService
	Reactions     *service.ReactionService
	Typing        *service.TypingService
	Summaries     *service.SummaryService
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Services          Services
	Events            Subscriber
	Checks            []Check
	Logger            *logger.Logger
	JWTSecret         string
	WebhookSecret     string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// WebhookSecretHeader carries the identity webhook shared secret.
const WebhookSecretHeader = "X-Webhook-Secret"

// NewRouter builds the HTTP routes of the chat API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Global()
	}
	svc := cfg.Services

	healthHandler := NewHealthHandler(cfg.Checks...)
	conversationHandler := NewConversationHandler(svc.Conversations, svc.ReadState, svc.Summaries, log.Named("conversations"))
	messageHandler := NewMessageHandler(svc.Messages, svc.Conversations, log.Named("messages"))
	reactionHandler := NewReactionHandler(svc.Reactions, log.Named("reactions"))
	typingHandler := NewTypingHandler(svc.Typing, svc.Conversations, log.Named("typing"))
	userHandler := NewUserHandler(svc.Users, log.Named("users"))
	webhookHandler := NewWebhookHandler(svc.Users, log.Named("webhooks"))
	streamHandler := NewStreamHandler(cfg.Events, svc.Conversations, log.Named("stream"))
	wsHandler := NewWebSocketHandler(cfg.Events, svc.Typing, log.Named("ws"))

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.SharedSecret(WebhookSecretHeader, cfg.WebhookSecret)).
		Post("/webhooks/identity", webhookHandler.Identity)

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Get("/ws", wsHandler.Serve)

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", userHandler.Me)
			r.Put("/me", userHandler.UpdateMe)
			r.Post("/me/presence", userHandler.Presence)
			r.Get("/search", userHandler.Search)
			r.Get("/online", userHandler.Online)
			r.Get("/{userID}", userHandler.Get)
		})

		// Conversations
		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Post("/participants", conversationHandler.AddParticipants)
				r.Delete("/participants/{userID}", conversationHandler.RemoveParticipant)
				r.Post("/read", conversationHandler.MarkAsRead)
				r.Get("/unread", conversationHandler.UnreadCount)
				r.Post("/archive", conversationHandler.ToggleArchive())
				r.Post("/pin", conversationHandler.TogglePin())
				r.Post("/mute", conversationHandler.ToggleMute())
				r.Get("/summary", conversationHandler.Summary)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Get("/messages/search", messageHandler.Search)

				r.Get("/typing", typingHandler.List)
				r.Post("/typing", typingHandler.Set)

				// Streaming
				r.Get("/stream", streamHandler.Stream)
			})
		})

		r.Route("/messages/{id}", func(r chi.Router) {
			r.Put("/", messageHandler.Edit)
			r.Delete("/", messageHandler.Delete)
			r.Post("/forward", messageHandler.Forward)
			r.Put("/reactions", reactionHandler.Add)
			r.Delete("/reactions", reactionHandler.Remove)
		})
	})

	return r
}
