package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"prompt-studio/backend/pkg/logger"
)

// LLMAdapter handles communication with the LLM via LiteLLM
type LLMAdapter struct {
	client     *openai.Client
	model      string
	mu         sync.RWMutex // Protects model field for concurrent access
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// SetModel updates the default model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current default model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// NewLLMAdapter creates a new LLM adapter
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// For LiteLLM, we can use a dummy API key if not provided
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &LLMAdapter{
		client:     openai.NewClientWithConfig(config),
		model:      modelID,
		maxRetries: 3,
		backoff:    time.Second,
		logger:     logger.Named("llm"),
	}
}

// Request is one completion of a stored prompt
type Request struct {
	SystemPrompt string
	UserMsg      string
	// Model overrides the adapter default when set
	Model       string
	Temperature float32
	MaxTokens   int
}

// Response represents the LLM's response
type Response struct {
	Content string
	Model   string
}

// Generate sends a request to the LLM and returns the response. Failed
// attempts are retried with linear backoff.
func (a *LLMAdapter) Generate(ctx context.Context, in Request) (*Response, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: in.SystemPrompt,
		},
	}
	if in.UserMsg != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: in.UserMsg,
		})
	}

	model := in.Model
	if model == "" {
		model = a.GetModel()
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", model),
		)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate response after %d attempts: %w", a.maxRetries, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in LLM response")
	}

	response := &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if response.Model == "" {
		response.Model = model
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", response.Model),
		zap.Bool("has_content", response.Content != ""),
	)
	return response, nil
}
