package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"google.golang.org/genai"

	"github.com/strategos/advisor/internal/config"
	"github.com/strategos/advisor/internal/log"
)

// ErrNoBackend means no configured backend has credentials available.
var ErrNoBackend = errors.New("llm: no backend available, set GEMINI_API_KEY or OPENAI_API_KEY")

// Client drives text generation against the ranked backend list.
// Fallback policy belongs to the caller; the client only executes a
// single call against a chosen backend.
type Client struct {
	g         *genkit.Genkit
	backends  []Backend
	maxTokens int
	logger    log.Logger
}

// New initializes Genkit with the plugins whose credentials are
// present and resolves the ranked backend list once.
func New(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	backends := rankBackends(cfg)
	if len(backends) == 0 {
		return nil, ErrNoBackend
	}

	var wantOpenAI, wantGoogle bool
	for _, b := range backends {
		switch providerPrefix(b.Provider) {
		case "openai":
			wantOpenAI = true
		default:
			wantGoogle = true
		}
	}

	var g *genkit.Genkit
	switch {
	case wantOpenAI && wantGoogle:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}, &openai.OpenAI{}))
	case wantOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
	default:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	}
	if g == nil {
		return nil, errors.New("llm: initializing genkit")
	}

	for _, b := range backends {
		logger.Info("model backend available", "rank", b.Rank, "model", b.ModelName())
	}

	return &Client{
		g:         g,
		backends:  backends,
		maxTokens: cfg.MaxOutputTokens,
		logger:    logger,
	}, nil
}

// Backends returns the ranked backend list, primary first.
func (c *Client) Backends() []Backend {
	return c.backends
}

// GenerateStream runs one streaming generation against a backend,
// forwarding each text delta to cb as it arrives. Returns the full
// joined text once the stream ends.
func (c *Client) GenerateStream(ctx context.Context, b Backend, system string, msgs []*ai.Message, cb func(context.Context, string) error) (string, error) {
	opts := c.generateOpts(b, system, msgs)
	opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
		if chunk == nil {
			return nil
		}
		for _, part := range chunk.Content {
			if part.Text == "" {
				continue
			}
			if err := cb(ctx, part.Text); err != nil {
				return err
			}
		}
		return nil
	}))

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		return "", fmt.Errorf("streaming from %s: %w", b.ModelName(), err)
	}
	return resp.Text(), nil
}

// Generate runs one non-streaming generation against a backend and
// returns the completed text.
func (c *Client) Generate(ctx context.Context, b Backend, system string, msgs []*ai.Message) (string, error) {
	resp, err := genkit.Generate(ctx, c.g, c.generateOpts(b, system, msgs)...)
	if err != nil {
		return "", fmt.Errorf("generating from %s: %w", b.ModelName(), err)
	}
	return resp.Text(), nil
}

func (c *Client) generateOpts(b Backend, system string, msgs []*ai.Message) []ai.GenerateOption {
	opts := []ai.GenerateOption{
		ai.WithModelName(b.ModelName()),
		ai.WithMessages(msgs...),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	// The output-token bound is plugin-specific config; the OpenAI
	// compat plugin applies its own server-side default.
	if providerPrefix(b.Provider) == "googleai" && c.maxTokens > 0 {
		opts = append(opts, ai.WithConfig(&genai.GenerateContentConfig{
			MaxOutputTokens: int32(c.maxTokens),
		}))
	}
	return opts
}
