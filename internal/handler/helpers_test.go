package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	natsclient "github.com/chatty-app/chat-service/internal/nats"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/internal/typing"
	"github.com/chatty-app/chat-service/pkg/logger"
)

const (
	testJWTSecret     = "jwt-test-secret"
	testWebhookSecret = "webhook-test-secret"
)

// fakeSubscriber replays queued events to every subscriber, then follows
// live when set.
type fakeSubscriber struct {
	mu      sync.Mutex
	filters []string
	after   []uint64
	events  []*model.ChatEvent
	live    chan *model.ChatEvent
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, filter string, afterSequence uint64, handler natsclient.EventHandler) (*natsclient.Subscription, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.after = append(f.after, afterSequence)
	events := append([]*model.ChatEvent(nil), f.events...)
	live := f.live
	f.mu.Unlock()

	go func() {
		for _, e := range events {
			handler(e)
		}
		if live == nil {
			return
		}
		for {
			select {
			case e := <-live:
				handler(e)
			case <-ctx.Done():
				return
			}
		}
	}()
	return &natsclient.Subscription{}, nil
}

func (f *fakeSubscriber) lastFilter() (string, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filters) == 0 {
		return "", 0
	}
	return f.filters[len(f.filters)-1], f.after[len(f.after)-1]
}

type testServer struct {
	handler  http.Handler
	services Services
	typing   *typing.MemoryStore
	events   *fakeSubscriber
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.Open(repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    "file:handler_" + name + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := repository.NewStore(db)
	deps := service.Deps{Store: store, Logger: logger.NewNop()}
	typingStore := typing.NewMemoryStore()

	ts := &testServer{
		typing: typingStore,
		events: &fakeSubscriber{},
		services: Services{
			Users:         service.NewUserService(deps),
			Conversations: service.NewConversationService(deps),
			ReadState:     service.NewReadStateService(deps),
			Messages:      service.NewMessageService(deps, typingStore, service.DefaultEditWindow),
			Reactions:     service.NewReactionService(deps),
			Typing:        service.NewTypingService(deps, typingStore, service.DefaultTypingWindow),
			Summaries:     service.NewSummaryService(deps, nil),
		},
	}
	ts.handler = NewRouter(RouterConfig{
		Services:      ts.services,
		Events:        ts.events,
		Logger:        logger.NewNop(),
		JWTSecret:     testJWTSecret,
		WebhookSecret: testWebhookSecret,
		Checks: []Check{{Name: "database", Fn: func(ctx context.Context) error {
			return store.Ping(ctx)
		}}},
	})
	return ts
}

func token(t *testing.T, userID string) string {
	t.Helper()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

// do sends a request as userID (anonymous when empty) and returns the
// recorder.
func (ts *testServer) do(t *testing.T, userID, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, userID))
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body = %s", rec.Code, want, rec.Body.String())
	}
}

func (ts *testServer) createGroup(t *testing.T, creator string, others ...string) string {
	t.Helper()
	rec := ts.do(t, creator, http.MethodPost, "/api/v1/conversations", map[string]interface{}{
		"participants": others,
		"is_group":     true,
	})
	expectStatus(t, rec, http.StatusCreated)
	return decode[model.CreateConversationResponse](t, rec).ConversationID
}

func (ts *testServer) sendMessage(t *testing.T, sender, conversationID, content string) string {
	t.Helper()
	rec := ts.do(t, sender, http.MethodPost, "/api/v1/conversations/"+conversationID+"/messages", map[string]string{
		"content": content,
	})
	expectStatus(t, rec, http.StatusCreated)
	return decode[model.SendMessageResponse](t, rec).MessageID
}
