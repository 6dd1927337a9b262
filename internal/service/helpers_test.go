package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chatty-app/chat-service/internal/llm"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/repository"
	"github.com/chatty-app/chat-service/internal/typing"
	"github.com/chatty-app/chat-service/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ChatEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event *model.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) ofType(t model.EventType) []*model.ChatEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*model.ChatEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeLLM struct {
	reply string
	last  *llm.CompletionRequest
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.last = req
	return &llm.CompletionResponse{Content: f.reply, Model: "fake-1"}, nil
}

func (f *fakeLLM) Name() string { return "fake" }

type testEnv struct {
	store     *repository.Store
	pub       *recordingPublisher
	clock     *fakeClock
	typing    *typing.MemoryStore
	llm       *fakeLLM
	users     *UserService
	convs     *ConversationService
	messages  *MessageService
	reactions *ReactionService
	typingSvc *TypingService
	reads     *ReadStateService
	summary   *SummaryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.Open(repository.Config{
		Driver: repository.DriverSQLite,
		DSN:    "file:" + name + "?mode=memory&cache=shared",
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

	env := &testEnv{
		store:  repository.NewStore(db),
		pub:    &recordingPublisher{},
		clock:  &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		typing: typing.NewMemoryStore(),
		llm:    &fakeLLM{reply: "  Alice greeted Bob.  "},
	}
	deps := Deps{Store: env.store, Publisher: env.pub, Logger: logger.NewNop()}

	env.users = NewUserService(deps)
	env.convs = NewConversationService(deps)
	env.messages = NewMessageService(deps, env.typing, DefaultEditWindow)
	env.reactions = NewReactionService(deps)
	env.typingSvc = NewTypingService(deps, env.typing, DefaultTypingWindow)
	env.reads = NewReadStateService(deps)
	env.summary = NewSummaryService(deps, env.llm)

	for _, b := range []*base{
		&env.users.base, &env.convs.base, &env.messages.base, &env.reactions.base,
		&env.typingSvc.base, &env.reads.base, &env.summary.base,
	} {
		b.now = env.clock.Now
	}
	return env
}

func (e *testEnv) group(t *testing.T, creator string, others ...string) string {
	t.Helper()
	id, err := e.convs.Create(context.Background(), &model.CreateConversationRequest{
		CreatedBy:    creator,
		Participants: others,
		IsGroup:      true,
	})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return id
}

func (e *testEnv) direct(t *testing.T, a, b string) string {
	t.Helper()
	id, err := e.convs.Create(context.Background(), &model.CreateConversationRequest{
		CreatedBy:    a,
		Participants: []string{a, b},
	})
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	return id
}

func (e *testEnv) send(t *testing.T, conversationID, sender, content string) *model.Message {
	t.Helper()
	msg, err := e.messages.Send(context.Background(), &model.SendMessageRequest{
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
	})
	if err != nil {
		t.Fatalf("send %q: %v", content, err)
	}
	return msg
}

func (e *testEnv) user(t *testing.T, externalID, first string) *model.User {
	t.Helper()
	u, err := e.users.Upsert(context.Background(), &model.UpsertUserRequest{
		ExternalID: externalID,
		Email:      externalID + "@example.com",
		FirstName:  &first,
	})
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	return u
}

func assertKind(t *testing.T, err error, want error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", want)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
