package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: ./config.yaml, not an error if absent.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables with QUILLBOARD_ prefix override file values,
	// e.g. QUILLBOARD_DATABASE_URL maps to database.url.
	v.SetEnvPrefix("QUILLBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for settings that have a sensible value
// without any operator input.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.app_role", "quillboard_app")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.embedding_model", "text-embedding-004")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("worker.batch_size", 25)
	v.SetDefault("worker.max_attempts", 10)
	v.SetDefault("worker.sync_card_limit", 50)
	v.SetDefault("worker.retrieval_top_k", 8)
}

// bindEnvKeys binds each known key explicitly. AutomaticEnv alone does not
// surface env-only keys through Unmarshal, so every key must be bound.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.port",
		"server.log_level",
		"database.url",
		"database.app_role",
		"auth.jwt_secret",
		"llm.gemini_api_key",
		"llm.model_name",
		"llm.embedding_model",
		"llm.max_retries",
		"llm.retry_delay_seconds",
		"worker.poll_interval",
		"worker.batch_size",
		"worker.max_attempts",
		"worker.sync_card_limit",
		"worker.retrieval_top_k",
	}
	for _, key := range keys {
		// BindEnv only errors when no key is supplied.
		_ = v.BindEnv(key)
	}
}
