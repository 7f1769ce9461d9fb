// Package llm provides provider-agnostic access to chat completion models.
package llm

import "context"

// Params controls a single generation request.
type Params struct {
	Temperature float64
	MaxTokens   int
}

// Generator produces a completion for a prompt. Implementations wrap a
// specific provider SDK and normalize failures into *Error.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
}
