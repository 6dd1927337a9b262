package service

import (
	"context"
	"testing"
	"time"
)

func TestUnreadCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, "alice", "bob")

	count := func() int64 {
		t.Helper()
		n, err := env.reads.UnreadCount(ctx, conv, "bob")
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		return n
	}

	if n := count(); n != 0 {
		t.Fatalf("empty conversation unread = %d", n)
	}

	env.send(t, conv, "alice", "one")
	last := env.send(t, conv, "alice", "two")
	if n := count(); n != 2 {
		t.Fatalf("never read: unread = %d, want 2", n)
	}

	if err := env.reads.MarkAsRead(ctx, conv, "bob", &last.ID); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	if n := count(); n != 0 {
		t.Fatalf("after read: unread = %d, want 0", n)
	}

	env.clock.Advance(time.Second)
	env.send(t, conv, "alice", "three")
	if n := count(); n != 1 {
		t.Fatalf("after new message: unread = %d, want 1", n)
	}

	member, err := env.store.Member(ctx, conv, "bob")
	if err != nil {
		t.Fatalf("member: %v", err)
	}
	if member.LastReadMessageID == nil || *member.LastReadMessageID != last.ID || member.LastReadAt == nil {
		t.Fatalf("read cursor not stored: %+v", member)
	}
}

func TestMarkAsReadNonMemberIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.direct(t, "alice", "bob")
	env.send(t, conv, "alice", "hi")

	if err := env.reads.MarkAsRead(ctx, conv, "mallory", nil); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	n, err := env.reads.UnreadCount(ctx, conv, "mallory")
	if err != nil || n != 0 {
		t.Fatalf("non-member unread = %d, %v", n, err)
	}
}
