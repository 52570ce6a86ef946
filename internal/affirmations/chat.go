package affirmations

import (
	"context"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ChatConfig configures the chat completions backend for OpenAI-compatible endpoints.
type ChatConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	Logger      *zap.Logger
}

// ChatGenerator calls an OpenAI-compatible chat completions endpoint in JSON mode.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

// NewChatGenerator constructs the backend.
func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Generate implements Generator.
func (g *ChatGenerator) Generate(ctx context.Context, request Request) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}
	input, err := BuildPrompt(request)
	if err != nil {
		return "", err
	}

	response, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemInstructions,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: input,
			},
		},
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", ErrEmptyAffirmation
	}

	affirmation, err := decodeOutput(response.Choices[0].Message.Content)
	if err != nil {
		g.logger.Debug("affirmation output rejected", zap.String("response_id", response.ID), zap.Error(err))
		return "", err
	}
	return affirmation, nil
}
