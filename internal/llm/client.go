// Package llm wraps the hosted language models used for conversation
// summaries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CompletionRequest is a single-turn prompt. Zero values pick provider
// defaults.
type CompletionRequest struct {
	Model       string
	Instruction string
	Input       string
	MaxTokens   int
	Temperature float64
}

// Usage counts the tokens a completion consumed.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// CompletionResponse is the text a provider returned.
type CompletionResponse struct {
	Content    string
	Model      string
	Usage      Usage
	StopReason string
	Latency    time.Duration
}

// Client completes prompts against one provider.
type Client interface {
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	Name() string
}

// Provider names a hosted model vendor.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

const defaultMaxTokens = 1024

// ErrNoProvider is returned by Select when no provider has a key.
var ErrNoProvider = errors.New("no LLM provider configured")

// NewClient creates a client for provider.
func NewClient(provider Provider, apiKey string) (Client, error) {
	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}

// Select creates a client for the preferred provider when it has a key,
// otherwise for the first other provider that does.
func Select(preferred Provider, keys map[Provider]string) (Client, error) {
	order := []Provider{preferred, ProviderAnthropic, ProviderOpenAI}
	var errs []error
	for _, p := range order {
		key := keys[p]
		if key == "" {
			continue
		}
		c, err := NewClient(p, key)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return c, nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoProvider
}

// prompt joins the instruction and the input into one user turn.
func prompt(req *CompletionRequest) string {
	if req.Instruction == "" {
		return req.Input
	}
	return req.Instruction + "\n\n" + req.Input
}

func maxTokens(req *CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return defaultMaxTokens
}
