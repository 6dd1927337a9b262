package nats

import (
	"context"
	"errors"
	"testing"

	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/pkg/logger"
)

func TestSubjects(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"conversation", ConversationSubject("c1", model.EventMessageCreated), "chat.conv.c1.message.created"},
		{"user", UserSubject("u1", model.EventReactionAdded), "chat.user.u1.reaction.added"},
		{"conversation filter", ConversationFilter("c1"), "chat.conv.c1.>"},
		{"user filter", UserFilter("u1"), "chat.user.u1.>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestConfigTLSRequiresAllFiles(t *testing.T) {
	if (Config{CAFile: "ca.pem", CertFile: "cert.pem"}).tls() {
		t.Error("tls enabled without a key file")
	}
	if !(Config{CAFile: "ca.pem", CertFile: "cert.pem", KeyFile: "key.pem"}).tls() {
		t.Error("tls disabled with all files set")
	}
}

func TestConnectHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Connect(ctx, Config{URL: "nats://127.0.0.1:4222"}, logger.NewNop()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestPingWithoutConnection(t *testing.T) {
	var c *Client
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected error from nil client")
	}
}
