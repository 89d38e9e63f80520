package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`

	// AppRole is the restricted database role the tenant scoping layer
	// switches to before executing scoped work. Row-level security policies
	// are enforced for this role, not for the owning role the pool connects as.
	AppRole string `mapstructure:"app_role" validate:"required"`
}

// AuthConfig contains authentication settings for the HTTP surface.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name"     validate:"required"`
	EmbeddingModel    string `mapstructure:"embedding_model" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries"     validate:"gte=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// WorkerConfig contains settings for the outbox claim loop.
type WorkerConfig struct {
	// PollInterval is the tick interval of the claim loop.
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`

	// BatchSize is the maximum number of outbox events claimed per tick.
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// MaxAttempts is the attempt count at which a repeatedly failing event
	// is parked as a dead letter instead of being retried again.
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,gt=0"`

	// SyncCardLimit bounds how many recently updated cards an ask-board
	// execution re-indexes before retrieval.
	SyncCardLimit int `mapstructure:"sync_card_limit" validate:"required,gt=0"`

	// RetrievalTopK is the default number of context chunks retrieved per question.
	RetrievalTopK int `mapstructure:"retrieval_top_k" validate:"required,gt=0"`
}
