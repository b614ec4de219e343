package llm

import (
	"context"
	"fmt"
	"strings"
)

// Providers lists the backend names accepted by NewModel.
var Providers = []string{"gemini", "ollama", "openrouter"}

// NewModel builds the backend registered under provider.
func NewModel(ctx context.Context, provider string, cfg Config) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini", "":
		return NewGeminiModel(ctx, cfg)
	case "ollama":
		return NewOllamaModel(cfg), nil
	case "openrouter":
		return NewOpenRouterModel(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want one of %s)", provider, strings.Join(Providers, ", "))
	}
}
