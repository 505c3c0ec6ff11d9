// Package openai adapts the OpenAI chat completion API to ai.Generator.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/logger"
)

const (
	defaultModel           = "gpt-4o-mini"
	defaultTemperature     = 0.2
	defaultMaxOutputTokens = 700

	providerName = "openai"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error)
}

// Config configures the OpenAI generator.
type Config struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float32
	MaxOutputTokens int
}

// Generator sends prompts as a single user message and asks for a JSON object back.
type Generator struct {
	client      chatCompleter
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator creates a Generator backed by the OpenAI API.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	clientCfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = base
	}

	return newGenerator(goopenai.NewClientWithConfig(clientCfg), cfg, log), nil
}

func newGenerator(client chatCompleter, cfg Config, log *zap.Logger) *Generator {
	g := &Generator{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxOutputTokens,
	}
	if g.model == "" {
		g.model = defaultModel
	}
	if g.temperature <= 0 {
		g.temperature = defaultTemperature
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxOutputTokens
	}
	g.logger = logger.WithCommonFields(log, providerName, g.model)
	return g
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		g.logger.Warn("openai returned no choices")
		return "", nil
	}

	choice := resp.Choices[0]
	if choice.FinishReason == goopenai.FinishReasonLength {
		g.logger.Warn("openai answer hit the token limit", zap.Int("max_tokens", g.maxTokens))
	}

	return strings.TrimSpace(choice.Message.Content), nil
}

// classify marks provider and transport failures as ai.ErrUnavailable.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: openai api status %d: %s", ai.ErrUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: openai request status %d: %w", ai.ErrUnavailable, reqErr.HTTPStatusCode, reqErr.Err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ai.ErrUnavailable, err)
	}

	return fmt.Errorf("create chat completion: %w", err)
}

func (g *Generator) Model() string { return g.model }

func (g *Generator) Provider() string { return providerName }
