package service

import (
	"context"
	"testing"

	"github.com/chatty-app/chat-service/internal/model"
)

func TestReactionUpsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, "alice", "bob")
	msg := env.send(t, conv, "alice", "party?")

	for _, emoji := range []string{"👍", "🎉", "🎉"} {
		if err := env.reactions.Add(ctx, msg.ID, "bob", emoji); err != nil {
			t.Fatalf("add %s: %v", emoji, err)
		}
	}
	if err := env.reactions.Add(ctx, msg.ID, "alice", "❤️"); err != nil {
		t.Fatalf("add alice: %v", err)
	}

	reactions, err := env.store.ReactionsForMessages(ctx, []string{msg.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byUser := make(map[string][]string)
	for _, r := range reactions[msg.ID] {
		byUser[r.UserID] = append(byUser[r.UserID], r.Emoji)
	}
	if len(byUser["bob"]) != 1 || byUser["bob"][0] != "🎉" {
		t.Fatalf("bob reactions = %v", byUser["bob"])
	}
	if len(byUser["alice"]) != 1 {
		t.Fatalf("alice reactions = %v", byUser["alice"])
	}
}

func TestReactionRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, "alice", "bob")
	msg := env.send(t, conv, "alice", "hi")

	assertKind(t, env.reactions.Add(ctx, "missing", "bob", "👍"), ErrNotFound)
	assertKind(t, env.reactions.Add(ctx, msg.ID, "mallory", "👍"), ErrForbidden)
	assertKind(t, env.reactions.Add(ctx, msg.ID, "bob", " "), ErrInvalid)

	if err := env.reactions.Remove(ctx, msg.ID, "bob"); err != nil {
		t.Fatalf("remove missing reaction: %v", err)
	}
	if err := env.reactions.Add(ctx, msg.ID, "bob", "👍"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := env.reactions.Remove(ctx, msg.ID, "bob"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if n := len(env.pub.ofType(model.EventReactionAdded)); n != 1 {
		t.Errorf("added events = %d", n)
	}
	if n := len(env.pub.ofType(model.EventReactionRemoved)); n != 1 {
		t.Errorf("removed events = %d", n)
	}
}
