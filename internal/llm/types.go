// Package llm holds the remote completion backends. Each backend sends a
// single prompt and hands back the raw response shape untouched so the
// gateway can normalize it.
package llm

import (
	"context"
	"errors"
	"time"

	"github.com/valpere/codeshift/internal/normalize"
)

var (
	// ErrRateLimited marks quota or rate-limit refusals from a provider.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrEmptyResponse is returned when a provider answers without content.
	ErrEmptyResponse = errors.New("empty response from model")
)

const defaultTimeout = 120 * time.Second

type Config struct {
	APIKey      string        `mapstructure:"api_key" json:"api_key"`
	Model       string        `mapstructure:"model" json:"model"`
	BaseURL     string        `mapstructure:"base_url" json:"base_url"`
	Temperature float32       `mapstructure:"temperature" json:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTimeout
	}
	return c.Timeout
}

// Model is a remote completion capability.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompt string) (normalize.Raw, error)
	IsAvailable(ctx context.Context) error
}
