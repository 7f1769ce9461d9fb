package llm

import "context"

// MockGenerator is a scripted Generator for tests.
type MockGenerator struct {
	// GenerateFunc handles each call when set.
	GenerateFunc func(ctx context.Context, prompt string, params Params) (string, error)

	// Prompts records every prompt received.
	Prompts []string
}

var _ Generator = (*MockGenerator)(nil)

func (m *MockGenerator) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, params)
	}
	return "", nil
}
