package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	ProviderGemini     = "gemini"
	DefaultGeminiModel = "gemini-2.5-flash"
)

type GeminiConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Decoding DecodingConfig
	Timeout  time.Duration
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Gemini struct {
	models  contentGenerator
	model   string
	config  *genai.GenerateContentConfig
	timeout time.Duration
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewGeminiWithModels(client.Models, cfg), nil
}

func NewGeminiWithModels(models contentGenerator, cfg GeminiConfig) *Gemini {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiModel
	}
	decoding := cfg.Decoding
	if decoding == (DecodingConfig{}) {
		decoding = DefaultDecodingConfig()
	}
	return &Gemini{
		models:  models,
		model:   model,
		config:  generateContentConfig(decoding),
		timeout: cfg.Timeout,
	}
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := withTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		return "", &GenerationError{Provider: ProviderGemini, Model: g.model, Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		reason := "no text in response"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + string(resp.PromptFeedback.BlockReason)
		}
		return "", &GenerationError{Provider: ProviderGemini, Model: g.model, Err: errors.New(reason)}
	}
	return text, nil
}

func generateContentConfig(decoding DecodingConfig) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(decoding.Temperature)),
		TopP:            genai.Ptr(float32(decoding.TopP)),
		TopK:            genai.Ptr(float32(decoding.TopK)),
		MaxOutputTokens: int32(decoding.MaxOutputTokens),
	}
}
