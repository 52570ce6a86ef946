package affirmations

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOpenAIChat = "openai-chat"
	ProviderDisabled   = "disabled"
)

// ProviderConfig selects and configures a generation backend.
type ProviderConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Logger   *zap.Logger
}

// NewGenerator builds the backend named by cfg.Provider.
func NewGenerator(cfg ProviderConfig) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Logger:  cfg.Logger,
		})
	case ProviderOpenAIChat:
		return NewChatGenerator(ChatConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Logger:  cfg.Logger,
		})
	case ProviderDisabled, "":
		return DisabledGenerator{}, nil
	default:
		return nil, fmt.Errorf("affirmations: unknown provider %q", cfg.Provider)
	}
}
