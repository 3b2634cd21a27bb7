package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Generator sends one prompt as the sole user turn of a single-turn
// completion and returns the raw text of the reply.
// All providers (OpenAI, Gemini, Ollama) implement this interface.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"

	DefaultOpenAIModel = "gpt-4.1-mini"
)

var (
	// ErrGenerationFailed is matched by every error returned from a RetryingGenerator.
	ErrGenerationFailed = errors.New("text generation failed")
	// ErrEmptyCompletion is returned when the service replies with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// GenerationError reports a generation that failed after retries.
type GenerationError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// NewGenerator builds the configured provider. Gemini dials at construction
// time, so ctx bounds client setup only.
func NewGenerator(ctx context.Context, cfg ProviderConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		return NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model)
	case ProviderOllama:
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL), cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
}
