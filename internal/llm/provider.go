package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// Provider streams one generation from an upstream API.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ProviderConfig is the process-wide, read-only configuration of one
// provider family.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	// AppURL and AppTitle identify the caller to OpenRouter.
	AppURL   string
	AppTitle string
	// Logger receives provider diagnostics; the gateway sets it per
	// request. Nil discards them.
	Logger *zerolog.Logger
}

func (c ProviderConfig) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return *c.Logger
}

// ProviderFactory builds the provider serving a resolved route.
type ProviderFactory func(route Route, cfg ProviderConfig) (Provider, error)

// upstreamClient carries no timeout: a stalled upstream holds the stream
// open until it errors or the caller goes away.
var upstreamClient = &http.Client{}

// NewProvider builds the provider for route. It fails with
// ErrMissingCredential when cfg has no API key.
func NewProvider(route Route, cfg ProviderConfig) (Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: %s requires %s", ErrMissingCredential, route.Name, route.CredentialEnv)
	}
	baseURL := orDefault(cfg.BaseURL, route.BaseURL)

	switch route.Kind {
	case KindGemini:
		return NewGeminiProvider(cfg.APIKey, route.Model, cfg.BaseURL), nil
	case KindOpenRouter:
		return NewOpenRouterProvider(cfg.APIKey, baseURL, route, cfg.AppURL, cfg.AppTitle).WithLogger(cfg.logger()), nil
	case KindGroq:
		return NewGroqProvider(cfg.APIKey, baseURL, route).WithLogger(cfg.logger()), nil
	case KindOpenAI:
		return NewOpenAIProvider(cfg.APIKey, route.Model, cfg.BaseURL), nil
	case KindAnthropic:
		return NewAnthropicProvider(cfg.APIKey, route.Model, cfg.BaseURL), nil
	}
	return nil, fmt.Errorf("%w: no provider for %s", ErrUnknownModel, route.Kind)
}
