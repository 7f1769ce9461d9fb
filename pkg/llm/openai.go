package llm

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// openAIGenerator talks to OpenAI or any OpenAI-compatible endpoint.
type openAIGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIGenerator creates a Generator backed by the OpenAI chat API.
// baseURL may point at any OpenAI-compatible endpoint; empty means the
// public API.
func NewOpenAIGenerator(apiKey, baseURL, model string, logger *zap.Logger) (Generator, error) {
	if model == "" {
		return nil, NewError(ErrorTypeModel, "model is required", false, nil)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}

	return &openAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.Named("llm.openai"),
	}, nil
}

var _ Generator = (*openAIGenerator)(nil)

func (g *openAIGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	g.logger.Debug("llm request",
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)),
		zap.Float64("temperature", params.Temperature))

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(params.Temperature),
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		g.logger.Error("llm request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = g.model
		return "", llmErr
	}

	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeUnknown, "no choices in response", true, nil)
	}

	g.logger.Info("llm request completed",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Choices[0].Message.Content, nil
}
