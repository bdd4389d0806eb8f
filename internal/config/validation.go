package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// At least one backend credential must be present; ranking happens in
	// internal/llm but a setup with no reachable backend is a config error.
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY or OPENAI_API_KEY", ErrMissingAPIKey)
	}

	if c.PrimaryModel == "" {
		return fmt.Errorf("%w: primary_model cannot be empty", ErrInvalidModelName)
	}
	if c.SecondaryModel == "" {
		return fmt.Errorf("%w: secondary_model cannot be empty", ErrInvalidModelName)
	}

	validProviders := []string{ProviderGemini, ProviderOpenAI, ProviderGoogleAI}
	if !slices.Contains(validProviders, c.PrimaryProvider) {
		return fmt.Errorf("%w: primary_provider %q, must be one of %v",
			ErrInvalidModelName, c.PrimaryProvider, validProviders)
	}
	if !slices.Contains(validProviders, c.SecondaryProvider) {
		return fmt.Errorf("%w: secondary_provider %q, must be one of %v",
			ErrInvalidModelName, c.SecondaryProvider, validProviders)
	}

	if c.MaxOutputTokens < 1 || c.MaxOutputTokens > 65536 {
		return fmt.Errorf("%w: must be between 1 and 65,536, got %d",
			ErrInvalidMaxTokens, c.MaxOutputTokens)
	}

	if c.RetrievalTopK <= 0 || c.RetrievalTopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d",
			ErrInvalidTopK, c.RetrievalTopK)
	}

	if len(c.CorpusDirs) == 0 {
		return fmt.Errorf("%w: corpus_dirs cannot be empty", ErrInvalidCorpusDir)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "advisor_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}

	return nil
}
