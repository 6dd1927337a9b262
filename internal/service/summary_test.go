package service

import (
	"context"
	"strings"
	"testing"
)

func TestSummarize(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.user(t, "alice", "Alice")
	conv := env.direct(t, "alice", "bob")

	empty, err := env.summary.Summarize(ctx, conv, "alice")
	if err != nil {
		t.Fatalf("empty summary: %v", err)
	}
	if empty.MessageCount != 0 || env.llm.last != nil {
		t.Fatalf("empty conversation should not reach the model: %+v", empty)
	}

	env.send(t, conv, "alice", "hi bob")
	gone := env.send(t, conv, "bob", "oops")
	env.send(t, conv, "bob", "hello alice")
	if err := env.messages.Delete(ctx, gone.ID, "bob"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	resp, err := env.summary.Summarize(ctx, conv, "bob")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if resp.Summary != "Alice greeted Bob." || resp.Model != "fake-1" || resp.MessageCount != 2 {
		t.Fatalf("unexpected summary: %+v", resp)
	}

	want := "Alice: hi bob\nbob: hello alice\n"
	if env.llm.last.Input != want {
		t.Fatalf("transcript = %q, want %q", env.llm.last.Input, want)
	}
	if strings.Contains(env.llm.last.Input, "oops") {
		t.Fatal("deleted message leaked into transcript")
	}

	_, err = env.summary.Summarize(ctx, conv, "mallory")
	assertKind(t, err, ErrForbidden)
}

func TestSummarizeDisabled(t *testing.T) {
	env := newTestEnv(t)
	conv := env.direct(t, "alice", "bob")
	env.summary.llm = nil

	_, err := env.summary.Summarize(context.Background(), conv, "alice")
	assertKind(t, err, ErrPolicy)
}
