package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/duckmesh/querychat/internal/config"
)

// Generator turns a prompt into generated text. Implementations make exactly
// one request per call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type DecodingConfig struct {
	Temperature     float64
	TopP            float64
	TopK            int
	MaxOutputTokens int
}

func DefaultDecodingConfig() DecodingConfig {
	return DecodingConfig{
		Temperature:     1.0,
		TopP:            0.95,
		TopK:            64,
		MaxOutputTokens: 8192,
	}
}

type GenerationError struct {
	Provider string
	Model    string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation with model %q failed: %v", e.Provider, e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Generator, error) {
	decoding := DecodingConfig{
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Decoding: decoding,
			Timeout:  cfg.Timeout,
		})
	case config.ProviderOpenAI:
		return NewOpenAI(OpenAIConfig{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Decoding: decoding,
			Timeout:  cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
