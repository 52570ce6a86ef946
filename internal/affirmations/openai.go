package affirmations

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

const defaultMaxOutputTokens = 300

var (
	errMissingAPIKey = errors.New("affirmations: api key is required")
	errMissingModel  = errors.New("affirmations: model is required")
)

// OpenAIConfig configures the Responses API backend.
type OpenAIConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	MaxOutputTokens int64
	Logger          *zap.Logger
}

// OpenAIGenerator calls the OpenAI Responses API with a strict JSON schema output.
type OpenAIGenerator struct {
	client          *openai.Client
	model           string
	maxOutputTokens int64
	logger          *zap.Logger
}

// NewOpenAIGenerator constructs the backend. The SDK's own retries are disabled;
// retry policy belongs to the caller.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errMissingModel
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(options...)

	maxOutputTokens := cfg.MaxOutputTokens
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenAIGenerator{
		client:          &client,
		model:           strings.TrimSpace(cfg.Model),
		maxOutputTokens: maxOutputTokens,
		logger:          logger,
	}, nil
}

// Generate implements Generator.
func (g *OpenAIGenerator) Generate(ctx context.Context, request Request) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}
	input, err := BuildPrompt(request)
	if err != nil {
		return "", err
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "Affirmation",
			Schema:      outputSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("A single affirmation for the diary writer"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(g.maxOutputTokens),
		Instructions:    openai.String(systemInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	response, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}

	affirmation, err := decodeOutput(response.OutputText())
	if err != nil {
		g.logger.Debug("affirmation output rejected", zap.String("response_id", response.ID), zap.Error(err))
		return "", err
	}
	return affirmation, nil
}
