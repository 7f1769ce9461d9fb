package llm

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/qbank-labs/question-engine/pkg/models"
)

// SettingsProvider supplies runtime provider settings. Satisfied by
// repositories.ConfigRepository.
type SettingsProvider interface {
	Values(ctx context.Context, keys ...string) (map[string]string, error)
}

// Factory builds Generators from operator-managed settings so provider,
// model and credentials can change at runtime without a restart.
type Factory struct {
	settings SettingsProvider
	logger   *zap.Logger
}

// NewFactory creates a Factory reading settings from the given provider.
func NewFactory(settings SettingsProvider, logger *zap.Logger) *Factory {
	return &Factory{settings: settings, logger: logger}
}

// Build constructs a Generator and its default Params from current
// settings. Returns ErrNotConfigured when the API key or model is missing.
func (f *Factory) Build(ctx context.Context) (Generator, Params, error) {
	values, err := f.settings.Values(ctx,
		models.SettingLLMProvider,
		models.SettingLLMAPIURL,
		models.SettingLLMAPIKey,
		models.SettingLLMModel,
		models.SettingLLMTemperature,
		models.SettingLLMMaxTokens,
	)
	if err != nil {
		return nil, Params{}, fmt.Errorf("load llm settings: %w", err)
	}

	apiKey := values[models.SettingLLMAPIKey]
	model := values[models.SettingLLMModel]
	if apiKey == "" || model == "" {
		return nil, Params{}, ErrNotConfigured
	}

	params := Params{Temperature: 0.7, MaxTokens: 4096}
	if raw := values[models.SettingLLMTemperature]; raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			params.Temperature = v
		}
	}
	if raw := values[models.SettingLLMMaxTokens]; raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			params.MaxTokens = v
		}
	}

	provider := values[models.SettingLLMProvider]
	baseURL := values[models.SettingLLMAPIURL]

	var gen Generator
	switch provider {
	case "anthropic":
		gen, err = NewAnthropicGenerator(apiKey, baseURL, model, f.logger)
	case "openai", "":
		gen, err = NewOpenAIGenerator(apiKey, baseURL, model, f.logger)
	default:
		return nil, Params{}, fmt.Errorf("%w: unknown provider %q", ErrNotConfigured, provider)
	}
	if err != nil {
		return nil, Params{}, err
	}

	f.logger.Debug("built llm generator",
		zap.String("provider", provider),
		zap.String("model", model))
	return gen, params, nil
}
