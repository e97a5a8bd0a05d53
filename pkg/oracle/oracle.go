// Package oracle defines the judgment-oracle boundary: a language model
// treated as an opaque classifier that returns categorical judgments plus
// free-text reasoning. Implementations live in the openai and ollama
// subpackages; logging and caching are explicit wrappers, not globals.
package oracle

import "context"

// GenerateOptions holds configuration for oracle generation requests.
type GenerateOptions struct {
	Model         string   // Model identifier to use for generation
	SystemPrompts []string // System prompts prepended to the request
	Temperature   float64  // Sampling temperature (0.0-2.0)
}

// GenerateOption is a functional option for configuring oracle requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that sets the model to use.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithSystemPrompts returns a GenerateOption that sets the system prompts
// to prepend to the request.
func WithSystemPrompts(prompts ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.SystemPrompts = prompts
	}
}

// WithTemperature returns a GenerateOption that sets the sampling
// temperature. Judgment calls use 0.0 for determinism; recommendation
// generation runs slightly warmer.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}

// Client is the judgment-oracle interface. GenerateCompletion returns raw
// text; GenerateCompletionWithFormat enforces a JSON schema derived from out
// and unmarshals the response into it.
type Client interface {
	GenerateCompletion(
		ctx context.Context,
		prompt string,
		opts ...GenerateOption,
	) (string, error)
	GenerateCompletionWithFormat(
		ctx context.Context,
		name string,
		description string,
		prompt string,
		out any,
		opts ...GenerateOption,
	) error
}
