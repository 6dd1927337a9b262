package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatty-app/chat-service/internal/model"
)

func (ts *testServer) webhook(t *testing.T, secret string, event IdentityEvent) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/identity", bytes.NewReader(b))
	req.Header.Set(WebhookSecretHeader, secret)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func identityUser(id, email, first string) IdentityUser {
	return IdentityUser{
		ID:             id,
		EmailAddresses: []EmailAddress{{EmailAddress: email}},
		FirstName:      &first,
	}
}

func TestIdentityWebhookLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.webhook(t, testWebhookSecret, IdentityEvent{Type: IdentityUserCreated, Data: identityUser("user_a", "a@example.com", "Ada")})
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, "user_a", http.MethodGet, "/api/v1/users/me", nil)
	expectStatus(t, rec, http.StatusOK)
	if u := decode[model.User](t, rec); u.Email != "a@example.com" || u.DisplayName() != "Ada" || !u.IsOnline {
		t.Fatalf("user = %+v", u)
	}

	rec = ts.webhook(t, testWebhookSecret, IdentityEvent{Type: IdentityUserUpdated, Data: identityUser("user_a", "ada@example.com", "Ada")})
	expectStatus(t, rec, http.StatusOK)
	rec = ts.do(t, "someone", http.MethodGet, "/api/v1/users/user_a", nil)
	expectStatus(t, rec, http.StatusOK)
	if u := decode[model.User](t, rec); u.Email != "ada@example.com" {
		t.Fatalf("email = %q", u.Email)
	}

	rec = ts.webhook(t, testWebhookSecret, IdentityEvent{Type: IdentityUserDeleted, Data: IdentityUser{ID: "user_a"}})
	expectStatus(t, rec, http.StatusOK)
	expectStatus(t, ts.do(t, "user_a", http.MethodGet, "/api/v1/users/me", nil), http.StatusNotFound)
}

func TestIdentityWebhookRejectsBadSecret(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.webhook(t, "wrong", IdentityEvent{Type: IdentityUserCreated, Data: identityUser("user_a", "a@example.com", "Ada")})
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestIdentityWebhookIgnoresUnknownEvents(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.webhook(t, testWebhookSecret, IdentityEvent{Type: "session.created", Data: IdentityUser{ID: "user_a"}})
	expectStatus(t, rec, http.StatusOK)
}

func TestUserProfileAndPresence(t *testing.T) {
	ts := newTestServer(t)
	ts.webhook(t, testWebhookSecret, IdentityEvent{Type: IdentityUserCreated, Data: identityUser("user_a", "a@example.com", "Ada")})
	ts.webhook(t, testWebhookSecret, IdentityEvent{Type: IdentityUserCreated, Data: identityUser("user_b", "b@example.com", "Grace")})

	rec := ts.do(t, "user_a", http.MethodPut, "/api/v1/users/me", map[string]string{"bio": "compilers", "status": "busy"})
	expectStatus(t, rec, http.StatusOK)
	if u := decode[model.User](t, rec); u.Bio == nil || *u.Bio != "compilers" || u.Status != model.UserStatusBusy {
		t.Fatalf("profile = %+v", u)
	}

	rec = ts.do(t, "user_b", http.MethodPost, "/api/v1/users/me/presence", map[string]bool{"is_online": false})
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, "user_a", http.MethodGet, "/api/v1/users/online", nil)
	expectStatus(t, rec, http.StatusOK)
	online := decode[[]model.User](t, rec)
	if len(online) != 1 || online[0].ExternalID != "user_a" {
		t.Fatalf("online = %+v", online)
	}

	rec = ts.do(t, "user_a", http.MethodGet, "/api/v1/users/search?q=grace", nil)
	expectStatus(t, rec, http.StatusOK)
	if hits := decode[[]model.User](t, rec); len(hits) != 1 || hits[0].ExternalID != "user_b" {
		t.Fatalf("search = %+v", hits)
	}

	rec = ts.do(t, "user_a", http.MethodGet, "/api/v1/users/search?q=grace&limit=x", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}
