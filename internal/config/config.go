// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.advisor/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Backends: primary/secondary language-model configuration
//   - Storage: PostgreSQL connection (see storage.go)
//   - Corpus: document roots for the knowledge index
//   - Server: HTTP listener, CORS, rate limiting
//
// Security: sensitive values (passwords) are never logged; MarshalJSON masks
// them explicitly. Validation is fail-fast with sentinel errors checkable via
// errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates no backend credential is present.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a backend model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTokens indicates the max output tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidTopK indicates the retrieval top-K value is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidCorpusDir indicates no corpus directory is configured.
	ErrInvalidCorpusDir = errors.New("invalid corpus directory")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

// Backend provider identifiers used in Config.PrimaryProvider /
// Config.SecondaryProvider.
const (
	ProviderGemini   = "gemini"
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Language backend configuration. The primary backend streams; the
	// secondary is the single fallback when the primary errors.
	PrimaryProvider   string `mapstructure:"primary_provider" json:"primary_provider"` // "gemini" (default) or "openai"
	PrimaryModel      string `mapstructure:"primary_model" json:"primary_model"`
	SecondaryProvider string `mapstructure:"secondary_provider" json:"secondary_provider"`
	SecondaryModel    string `mapstructure:"secondary_model" json:"secondary_model"`
	MaxOutputTokens   int    `mapstructure:"max_output_tokens" json:"max_output_tokens"`

	// Knowledge corpus configuration
	CorpusDirs    []string `mapstructure:"corpus_dirs" json:"corpus_dirs"`
	RetrievalTopK int      `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration
	ListenAddr  string   `mapstructure:"listen_addr" json:"listen_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".advisor")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Backend defaults
	viper.SetDefault("primary_provider", ProviderGemini)
	viper.SetDefault("primary_model", "gemini-2.5-flash")
	viper.SetDefault("secondary_provider", ProviderOpenAI)
	viper.SetDefault("secondary_model", "gpt-4o-mini")
	viper.SetDefault("max_output_tokens", 2048)

	// Corpus defaults
	viper.SetDefault("corpus_dirs", []string{"corpus"})
	viper.SetDefault("retrieval_top_k", 4)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "advisor")
	viper.SetDefault("postgres_password", "advisor_dev_password")
	viper.SetDefault("postgres_db_name", "advisor")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("trust_proxy", false)

	// Logging defaults
	viper.SetDefault("log_json", false)
	viper.SetDefault("log_level", "info")
}

// bindEnvVariables binds environment variables explicitly.
// Backend API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read directly by the
// Genkit plugins, not via Viper; their presence drives backend ranking in
// internal/llm and is validated in Validate().
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "ADVISOR_LISTEN_ADDR")
	mustBind("cors_origins", "ADVISOR_CORS_ORIGINS")
	mustBind("trust_proxy", "ADVISOR_TRUST_PROXY")
	mustBind("primary_provider", "ADVISOR_PRIMARY_PROVIDER")
	mustBind("primary_model", "ADVISOR_PRIMARY_MODEL")
	mustBind("secondary_provider", "ADVISOR_SECONDARY_PROVIDER")
	mustBind("secondary_model", "ADVISOR_SECONDARY_MODEL")
	mustBind("corpus_dirs", "ADVISOR_CORPUS_DIRS")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid substring matches against real secret fragments.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked; longer secrets show the first
// and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
