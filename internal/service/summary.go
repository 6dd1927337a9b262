package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/llm"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/pkg/metrics"
)

const (
	summaryMessageLimit = 50

	summaryInstruction = "Summarize the following chat transcript in a few sentences. " +
		"Mention decisions, open questions and who is responsible for what. " +
		"Reply with the summary only."
)

// SummaryService produces LLM digests of recent conversation history.
type SummaryService struct {
	base
	llm llm.Client
}

// NewSummaryService creates a summary service. A nil client disables
// summaries.
func NewSummaryService(d Deps, client llm.Client) *SummaryService {
	return &SummaryService{base: newBase(d, "summary"), llm: client}
}

// Summarize digests the latest messages of a conversation for a member.
func (s *SummaryService) Summarize(ctx context.Context, conversationID, userID string) (*model.SummaryResponse, error) {
	ctx, span := tracer.Start(ctx, "SummaryService.Summarize")
	defer span.End()

	if s.llm == nil {
		return nil, policy("conversation summaries are not enabled")
	}
	if _, err := conversation(ctx, s.store, conversationID); err != nil {
		return nil, wrap(err, "failed to get conversation")
	}
	if _, err := requireMember(ctx, s.store, conversationID, userID); err != nil {
		return nil, wrap(err, "failed to check membership")
	}

	msgs, err := s.store.RecentMessages(ctx, conversationID, summaryMessageLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	resp := &model.SummaryResponse{
		ConversationID: conversationID,
		Model:          s.llm.Name(),
		MessageCount:   len(msgs),
	}
	if len(msgs) == 0 {
		return resp, nil
	}

	transcript, err := s.transcript(ctx, msgs)
	if err != nil {
		return nil, err
	}

	out, err := s.llm.Complete(ctx, &llm.CompletionRequest{
		Instruction: summaryInstruction,
		Input:       transcript,
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		metrics.SummariesTotal.WithLabelValues(s.llm.Name(), "error").Inc()
		s.logger.Error("summary failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil, fmt.Errorf("failed to summarize conversation: %w", err)
	}
	metrics.SummariesTotal.WithLabelValues(s.llm.Name(), "success").Inc()
	s.logger.Debug("summary generated",
		zap.String("conversation_id", conversationID),
		zap.String("model", out.Model),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("latency", out.Latency),
	)

	resp.Summary = strings.TrimSpace(out.Content)
	if out.Model != "" {
		resp.Model = out.Model
	}
	return resp, nil
}

// transcript renders newest-first messages as chronological
// "name: content" lines.
func (s *SummaryService) transcript(ctx context.Context, msgs []model.Message) (string, error) {
	senders := make([]string, 0, len(msgs))
	for _, m := range msgs {
		senders = append(senders, m.SenderID)
	}
	users, err := s.store.UsersByExternalIDs(ctx, senders)
	if err != nil {
		return "", fmt.Errorf("failed to resolve senders: %w", err)
	}

	var b strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		name := m.SenderID
		if u, ok := users[m.SenderID]; ok {
			name = u.DisplayName()
		}
		content := m.Content
		if m.Type != model.MessageTypeText {
			content = fmt.Sprintf("[%s] %s", m.Type, content)
		}
		fmt.Fprintf(&b, "%s: %s\n", name, content)
	}
	return b.String(), nil
}
