// Package chat starts and feeds the conversation threads behind the explain
// variant. Only thread bootstrap lives in this service; the interactive
// conversation itself is driven by the chat gateway.
package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey  string
	BaseURL string
}

// OpenAIThreadStarter creates assistant threads via the OpenAI API.
type OpenAIThreadStarter struct {
	client *openai.Client
	logger *slog.Logger
}

func NewOpenAIThreadStarter(config Config, logger *slog.Logger) *OpenAIThreadStarter {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIThreadStarter{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}
}

// CreateThread opens a fresh thread. The system prompt travels as thread
// metadata; the chat gateway reads it when it attaches an assistant run.
func (s *OpenAIThreadStarter) CreateThread(ctx context.Context, systemPrompt string) (string, error) {
	req := openai.ThreadRequest{}
	if systemPrompt != "" {
		req.Metadata = map[string]any{"system_prompt": systemPrompt}
	}
	thread, err := s.client.CreateThread(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	s.logger.Debug("created chat thread", "thread_id", thread.ID)
	return thread.ID, nil
}

// SendMessage appends an assistant-authored message to a thread.
func (s *OpenAIThreadStarter) SendMessage(ctx context.Context, threadID, message string) error {
	_, err := s.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    "assistant",
		Content: message,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to thread %s: %w", threadID, err)
	}
	return nil
}
