package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/chatty-app/chat-service/internal/model"
)

func TestMessageFlow(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	first := ts.sendMessage(t, "alice", convID, "hello bob")
	ts.sendMessage(t, "bob", convID, "hi alice")

	rec := ts.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+convID+"/messages?limit=10", nil)
	expectStatus(t, rec, http.StatusOK)
	page := decode[model.ListMessagesResponse](t, rec)
	if len(page.Messages) != 2 || page.Messages[0].ID != first {
		t.Fatalf("page = %+v", page.Messages)
	}

	rec = ts.do(t, "alice", http.MethodPut, "/api/v1/messages/"+first, map[string]string{"content": "hello Bob"})
	expectStatus(t, rec, http.StatusOK)
	if msg := decode[model.Message](t, rec); msg.Content != "hello Bob" || msg.EditedAt == nil {
		t.Fatalf("edited = %+v", msg)
	}

	rec = ts.do(t, "bob", http.MethodPut, "/api/v1/messages/"+first, map[string]string{"content": "hijack"})
	expectStatus(t, rec, http.StatusForbidden)

	rec = ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages/search?q=BOB", nil)
	expectStatus(t, rec, http.StatusOK)
	if hits := decode[[]model.Message](t, rec); len(hits) != 1 || hits[0].ID != first {
		t.Fatalf("search hits = %+v", hits)
	}

	expectStatus(t, ts.do(t, "alice", http.MethodDelete, "/api/v1/messages/"+first, nil), http.StatusOK)
	// Deleting twice is a no-op.
	expectStatus(t, ts.do(t, "alice", http.MethodDelete, "/api/v1/messages/"+first, nil), http.StatusOK)

	rec = ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages/search?q=bob", nil)
	expectStatus(t, rec, http.StatusOK)
	if hits := decode[[]model.Message](t, rec); len(hits) != 0 {
		t.Fatalf("deleted message still searchable: %+v", hits)
	}
}

func TestSendValidation(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")
	path := "/api/v1/conversations/" + convID + "/messages"

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"too long", map[string]interface{}{"content": strings.Repeat("x", 4001)}, http.StatusBadRequest},
		{"bad reply id", map[string]interface{}{"content": "x", "reply_to_id": "nope"}, http.StatusBadRequest},
		{"empty without attachments", map[string]interface{}{"content": ""}, http.StatusBadRequest},
		{"bad attachment", map[string]interface{}{"attachments": []map[string]interface{}{{"id": "a", "name": "f", "url": "file:///etc/passwd"}}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, ts.do(t, "alice", http.MethodPost, path, tt.body), tt.want)
		})
	}
}

func TestNonMemberCannotReadOrSend(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	expectStatus(t, ts.do(t, "mallory", http.MethodGet, "/api/v1/conversations/"+convID+"/messages", nil), http.StatusForbidden)
	expectStatus(t, ts.do(t, "mallory", http.MethodPost, "/api/v1/conversations/"+convID+"/messages",
		map[string]string{"content": "hi"}), http.StatusForbidden)
}

func TestInvalidCursor(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages?cursor=abc", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestForward(t *testing.T) {
	ts := newTestServer(t)
	src := ts.createGroup(t, "alice", "bob")
	dst := ts.createGroup(t, "alice", "carol")
	msgID := ts.sendMessage(t, "bob", src, "forward me")

	rec := ts.do(t, "alice", http.MethodPost, "/api/v1/messages/"+msgID+"/forward", map[string]string{"conversation_id": dst})
	expectStatus(t, rec, http.StatusCreated)
	msg := decode[model.Message](t, rec)
	if msg.ConversationID != dst || msg.Content != "forward me" || msg.ForwardedFromID == nil || *msg.ForwardedFromID != msgID {
		t.Fatalf("forwarded = %+v", msg)
	}
}

func TestReactions(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")
	msgID := ts.sendMessage(t, "alice", convID, "react to me")
	path := "/api/v1/messages/" + msgID + "/reactions"

	expectStatus(t, ts.do(t, "bob", http.MethodPut, path, map[string]string{"emoji": "👍"}), http.StatusOK)
	expectStatus(t, ts.do(t, "bob", http.MethodPut, path, map[string]string{"emoji": "🎉"}), http.StatusOK)
	expectStatus(t, ts.do(t, "bob", http.MethodPut, path, map[string]string{"emoji": ""}), http.StatusBadRequest)

	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages", nil)
	expectStatus(t, rec, http.StatusOK)
	page := decode[model.ListMessagesResponse](t, rec)
	if r := page.Messages[0].Reactions; len(r) != 1 || r[0].Emoji != "🎉" || r[0].UserID != "bob" {
		t.Fatalf("reactions = %+v", r)
	}

	expectStatus(t, ts.do(t, "bob", http.MethodDelete, path, nil), http.StatusOK)
	rec = ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/messages", nil)
	if r := decode[model.ListMessagesResponse](t, rec).Messages[0].Reactions; len(r) != 0 {
		t.Fatalf("reactions after remove = %+v", r)
	}
}

func TestTypingEndpoints(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")
	if _, err := ts.services.Users.Upsert(context.Background(), &model.UpsertUserRequest{ExternalID: "alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	path := "/api/v1/conversations/" + convID + "/typing"
	expectStatus(t, ts.do(t, "alice", http.MethodPost, path, map[string]bool{"is_typing": true}), http.StatusOK)

	rec := ts.do(t, "bob", http.MethodGet, path, nil)
	expectStatus(t, rec, http.StatusOK)
	if users := decode[[]model.User](t, rec); len(users) != 1 || users[0].ExternalID != "alice" {
		t.Fatalf("typing users = %+v", users)
	}

	expectStatus(t, ts.do(t, "alice", http.MethodPost, path, map[string]bool{"is_typing": false}), http.StatusOK)
	rec = ts.do(t, "bob", http.MethodGet, path, nil)
	if users := decode[[]model.User](t, rec); len(users) != 0 {
		t.Fatalf("typing users after stop = %+v", users)
	}
}
