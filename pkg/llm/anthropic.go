package llm

import (
	"context"
	"strings"
	"time"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// anthropicGenerator talks to the Anthropic messages API.
type anthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewAnthropicGenerator creates a Generator backed by the Anthropic API.
func NewAnthropicGenerator(apiKey, baseURL, model string, logger *zap.Logger) (Generator, error) {
	if model == "" {
		return nil, NewError(ErrorTypeModel, "model is required", false, nil)
	}

	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}

	return &anthropicGenerator{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: 4096,
		logger:    logger.Named("llm.anthropic"),
	}, nil
}

var _ Generator = (*anthropicGenerator)(nil)

func (g *anthropicGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	g.logger.Debug("llm request",
		zap.String("model", g.model),
		zap.Int("prompt_len", len(prompt)))

	start := time.Now()
	temperature := float32(params.Temperature)

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(g.model),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		g.logger.Error("llm request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = g.model
		return "", llmErr
	}

	if len(resp.Content) == 0 {
		return "", NewError(ErrorTypeUnknown, "no content in response", true, nil)
	}

	g.logger.Info("llm request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return resp.Content[0].GetText(), nil
}
