package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                 = "DEARDIARY"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabasePath       = "deardiary.db"
	defaultLogLevel           = "info"
	defaultCookieName         = "app_session"
	defaultProvider           = "disabled"
	defaultModel              = "gpt-4o-mini"
	defaultGenerationTimeout  = 20 * time.Second
	defaultGenerationAttempts = 1
	defaultWriteAttempts      = 1
	defaultHeartbeatInterval  = 25 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
)

var knownProviders = map[string]struct{}{
	"openai":      {},
	"openai-chat": {},
	"disabled":    {},
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	TAuthSigningKey    string
	TAuthCookieName    string
	TAuthIssuer        string
	DatabasePath       string
	LogLevel           string
	CORSAllowedOrigins []string
	HeartbeatInterval  time.Duration
	ShutdownTimeout    time.Duration
	Affirmations       AffirmationsConfig
	EntryWriteAttempts int
}

// AffirmationsConfig selects and bounds the generation backend.
type AffirmationsConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.heartbeat_interval", defaultHeartbeatInterval)
	configViper.SetDefault("http.shutdown_timeout", defaultShutdownTimeout)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("tauth.cookie_name", defaultCookieName)
	configViper.SetDefault("tauth.issuer", "")
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("affirmations.provider", defaultProvider)
	configViper.SetDefault("affirmations.model", defaultModel)
	configViper.SetDefault("affirmations.api_key", "")
	configViper.SetDefault("affirmations.base_url", "")
	configViper.SetDefault("affirmations.timeout", defaultGenerationTimeout)
	configViper.SetDefault("affirmations.max_attempts", defaultGenerationAttempts)
	configViper.SetDefault("entries.write_max_attempts", defaultWriteAttempts)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		TAuthSigningKey:    configViper.GetString("tauth.signing_secret"),
		TAuthCookieName:    configViper.GetString("tauth.cookie_name"),
		TAuthIssuer:        configViper.GetString("tauth.issuer"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		CORSAllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		HeartbeatInterval:  configViper.GetDuration("http.heartbeat_interval"),
		ShutdownTimeout:    configViper.GetDuration("http.shutdown_timeout"),
		Affirmations: AffirmationsConfig{
			Provider:    strings.ToLower(strings.TrimSpace(configViper.GetString("affirmations.provider"))),
			Model:       strings.TrimSpace(configViper.GetString("affirmations.model")),
			APIKey:      configViper.GetString("affirmations.api_key"),
			BaseURL:     strings.TrimSpace(configViper.GetString("affirmations.base_url")),
			Timeout:     configViper.GetDuration("affirmations.timeout"),
			MaxAttempts: configViper.GetInt("affirmations.max_attempts"),
		},
		EntryWriteAttempts: configViper.GetInt("entries.write_max_attempts"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TAuthSigningKey) == "" {
		return fmt.Errorf("tauth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.TAuthCookieName) == "" {
		return fmt.Errorf("tauth.cookie_name is required")
	}
	if _, ok := knownProviders[c.Affirmations.Provider]; !ok {
		return fmt.Errorf("affirmations.provider %q is not supported", c.Affirmations.Provider)
	}
	if c.Affirmations.Provider != defaultProvider {
		if strings.TrimSpace(c.Affirmations.APIKey) == "" {
			return fmt.Errorf("affirmations.api_key is required for provider %q", c.Affirmations.Provider)
		}
		if c.Affirmations.Model == "" {
			return fmt.Errorf("affirmations.model is required for provider %q", c.Affirmations.Provider)
		}
	}
	if c.Affirmations.Timeout <= 0 {
		return fmt.Errorf("affirmations.timeout must be positive")
	}
	if c.Affirmations.MaxAttempts < 1 {
		return fmt.Errorf("affirmations.max_attempts must be at least 1")
	}
	if c.EntryWriteAttempts < 1 {
		return fmt.Errorf("entries.write_max_attempts must be at least 1")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("http.heartbeat_interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout must be positive")
	}
	return nil
}
