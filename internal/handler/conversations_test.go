package handler

import (
	"net/http"
	"testing"

	"github.com/chatty-app/chat-service/internal/model"
)

func TestConversationLifecycle(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID, nil)
	expectStatus(t, rec, http.StatusOK)
	details := decode[model.ConversationDetails](t, rec)
	if len(details.Participants) != 2 || !details.HasMember("bob") {
		t.Fatalf("participants = %v", details.Participants)
	}

	rec = ts.do(t, "alice", http.MethodPut, "/api/v1/conversations/"+convID, map[string]string{"name": "Launch"})
	expectStatus(t, rec, http.StatusOK)
	if conv := decode[model.Conversation](t, rec); conv.Name == nil || *conv.Name != "Launch" {
		t.Fatalf("name = %v", conv.Name)
	}

	rec = ts.do(t, "alice", http.MethodPost, "/api/v1/conversations/"+convID+"/participants", map[string][]string{
		"participants": {"carol"},
	})
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, "carol", http.MethodGet, "/api/v1/conversations", nil)
	expectStatus(t, rec, http.StatusOK)
	if items := decode[[]model.ConversationListItem](t, rec); len(items) != 1 || items[0].ID != convID {
		t.Fatalf("carol's list = %+v", items)
	}

	rec = ts.do(t, "alice", http.MethodDelete, "/api/v1/conversations/"+convID+"/participants/carol", nil)
	expectStatus(t, rec, http.StatusOK)

	rec = ts.do(t, "carol", http.MethodGet, "/api/v1/conversations/"+convID, nil)
	expectStatus(t, rec, http.StatusForbidden)
}

func TestGetMissingConversationReturnsNull(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/0190b6f4-7d3a-7c1e-8d1c-3f6a2b9e4a10", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := rec.Body.String(); body != "null\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestCreateConversationErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body interface{}
		want int
		kind string
	}{
		{"malformed body", "not an object", http.StatusBadRequest, "invalid"},
		{"direct with three", map[string]interface{}{"participants": []string{"bob", "carol"}}, http.StatusBadRequest, "invalid"},
		{"bad participant id", map[string]interface{}{"participants": []string{"bo b"}, "is_group": true}, http.StatusBadRequest, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "alice", http.MethodPost, "/api/v1/conversations", tt.body)
			expectStatus(t, rec, tt.want)
			body := decode[errorResponse](t, rec)
			if body.Success || body.Error == "" || body.Kind != tt.kind {
				t.Fatalf("body = %+v", body)
			}
		})
	}
}

func TestDirectConversationIsReused(t *testing.T) {
	ts := newTestServer(t)

	create := func(caller, other string) string {
		rec := ts.do(t, caller, http.MethodPost, "/api/v1/conversations", map[string]interface{}{
			"participants": []string{other},
		})
		expectStatus(t, rec, http.StatusCreated)
		return decode[model.CreateConversationResponse](t, rec).ConversationID
	}

	first := create("alice", "bob")
	if second := create("bob", "alice"); second != first {
		t.Fatalf("second create = %s, want %s", second, first)
	}
}

func TestNonAdminCannotAddParticipants(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	rec := ts.do(t, "bob", http.MethodPost, "/api/v1/conversations/"+convID+"/participants", map[string][]string{
		"participants": {"carol"},
	})
	expectStatus(t, rec, http.StatusForbidden)
	if body := decode[errorResponse](t, rec); body.Kind != "forbidden" {
		t.Fatalf("kind = %q", body.Kind)
	}
}

func TestToggleArchive(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	for _, want := range []bool{true, false} {
		rec := ts.do(t, "alice", http.MethodPost, "/api/v1/conversations/"+convID+"/archive", nil)
		expectStatus(t, rec, http.StatusOK)
		if got := decode[map[string]bool](t, rec)["is_archived"]; got != want {
			t.Fatalf("is_archived = %v, want %v", got, want)
		}
	}
}

func TestReadStateEndpoints(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")
	ts.sendMessage(t, "alice", convID, "one")
	ts.sendMessage(t, "alice", convID, "two")

	unread := func() int64 {
		rec := ts.do(t, "bob", http.MethodGet, "/api/v1/conversations/"+convID+"/unread", nil)
		expectStatus(t, rec, http.StatusOK)
		return decode[map[string]int64](t, rec)["unread_count"]
	}
	if n := unread(); n != 2 {
		t.Fatalf("unread before = %d", n)
	}

	expectStatus(t, ts.do(t, "bob", http.MethodPost, "/api/v1/conversations/"+convID+"/read", nil), http.StatusOK)
	if n := unread(); n != 0 {
		t.Fatalf("unread after = %d", n)
	}
}

func TestSummaryDisabledWithoutProvider(t *testing.T) {
	ts := newTestServer(t)
	convID := ts.createGroup(t, "alice", "bob")

	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/"+convID+"/summary", nil)
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestInvalidConversationID(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "alice", http.MethodGet, "/api/v1/conversations/not-a-uuid/messages", nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestRequiresAuthentication(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, "", http.MethodGet, "/api/v1/conversations", nil)
	expectStatus(t, rec, http.StatusUnauthorized)
}
