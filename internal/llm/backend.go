// Package llm wraps the Genkit model backends behind a small client
// with a ranked primary/fallback configuration pair.
package llm

import (
	"os"

	"github.com/strategos/advisor/internal/config"
)

// Backend is one model configuration. Availability is decided once at
// startup from credential presence, not re-derived per call.
type Backend struct {
	Rank     string // "primary" or "fallback"
	Provider string
	Model    string
}

// ModelName returns the provider-qualified Genkit model name.
func (b Backend) ModelName() string {
	return providerPrefix(b.Provider) + "/" + b.Model
}

// providerPrefix maps a configured provider to its Genkit plugin
// namespace.
func providerPrefix(provider string) string {
	switch provider {
	case config.ProviderOpenAI:
		return "openai"
	default:
		return "googleai"
	}
}

// credentialPresent reports whether the API key for a provider is set
// in the environment. The Genkit plugins read the same variables.
func credentialPresent(provider string) bool {
	switch provider {
	case config.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY") != ""
	default:
		return os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != ""
	}
}

// rankBackends builds the ordered backend list from configuration,
// keeping only entries whose credentials are present. The configured
// primary stays first when available.
func rankBackends(cfg *config.Config) []Backend {
	candidates := []Backend{
		{Rank: "primary", Provider: cfg.PrimaryProvider, Model: cfg.PrimaryModel},
		{Rank: "fallback", Provider: cfg.SecondaryProvider, Model: cfg.SecondaryModel},
	}

	var backends []Backend
	for _, b := range candidates {
		if b.Model == "" || !credentialPresent(b.Provider) {
			continue
		}
		backends = append(backends, b)
	}
	return backends
}
