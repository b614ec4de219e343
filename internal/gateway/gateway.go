// Package gateway is the single network boundary of the workflow. It asks
// the model for one completion, normalizes the answer and turns every
// failure into a Reply instead of an error.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valpere/codeshift/internal/llm"
	"github.com/valpere/codeshift/internal/normalize"
)

// Status tags the outcome carried by a Reply.
type Status int

const (
	StatusOK Status = iota
	StatusRateLimited
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// ParseStatus is the inverse of Status.String. Unknown names map to
// StatusFailed.
func ParseStatus(s string) Status {
	switch s {
	case "ok":
		return StatusOK
	case "rate_limited":
		return StatusRateLimited
	case "skipped":
		return StatusSkipped
	}
	return StatusFailed
}

// Display texts. The markers stay searchable so hosts that only keep the
// text can still recognise a failed step.
const (
	RateLimitMarker = "RATE LIMIT HIT"
	ErrorMarker     = "Error"

	RateLimitText   = "⚠️ **RATE LIMIT HIT:** Please wait 1 minute and try again."
	ErrorTextPrefix = "❌ Error: "
	PausedText      = "⚠️ Translation paused due to error in previous step."
)

// Reply is the outcome of one completion.
type Reply struct {
	Text   string
	Status Status
	Err    error
}

// OK reports whether the reply holds genuine model output.
func (r Reply) OK() bool { return r.Status == StatusOK }

// Failed builds the reply for a non-quota failure.
func Failed(err error) Reply {
	return Reply{Text: ErrorTextPrefix + err.Error(), Status: StatusFailed, Err: err}
}

// RateLimited builds the reply for a quota refusal.
func RateLimited(err error) Reply {
	return Reply{Text: RateLimitText, Status: StatusRateLimited, Err: err}
}

// Paused builds the reply of a step skipped because of an upstream failure.
func Paused() Reply {
	return Reply{Text: PausedText, Status: StatusSkipped}
}

// HasSentinel reports whether text carries either failure marker. It is
// only needed for text that arrives without a Status.
func HasSentinel(text string) bool {
	return strings.Contains(text, RateLimitMarker) || strings.Contains(text, ErrorMarker)
}

// FromText rebuilds a Reply for text stored without its status.
func FromText(text string) Reply {
	switch {
	case text == PausedText:
		return Paused()
	case strings.Contains(text, RateLimitMarker):
		return Reply{Text: text, Status: StatusRateLimited}
	case strings.HasPrefix(text, ErrorTextPrefix):
		return Reply{Text: text, Status: StatusFailed}
	}
	return Reply{Text: text, Status: StatusOK}
}

// Model is the remote completion capability used by the gateway.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompt string) (normalize.Raw, error)
}

type Gateway struct {
	model      Model
	normalizer *normalize.Normalizer
	logger     *zap.Logger
	timeout    time.Duration
}

type Option func(*Gateway)

func WithLogger(logger *zap.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTimeout bounds every completion. Zero leaves the caller's context
// untouched.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

func New(model Model, normalizer *normalize.Normalizer, opts ...Option) *Gateway {
	if normalizer == nil {
		normalizer = normalize.New("")
	}
	g := &Gateway{
		model:      model,
		normalizer: normalizer,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete issues exactly one request with prompt as the whole input.
// There is no retry and no conversation state between calls.
func (g *Gateway) Complete(ctx context.Context, prompt string) Reply {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := g.model.Generate(ctx, prompt)
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			g.logger.Warn("model rate limited",
				zap.String("model", g.model.Name()),
				zap.Duration("latency", latency),
				zap.Error(err))
			return RateLimited(err)
		}
		g.logger.Error("model call failed",
			zap.String("model", g.model.Name()),
			zap.Duration("latency", latency),
			zap.Error(err))
		return Failed(err)
	}

	text := g.normalizer.Normalize(raw)
	g.logger.Debug("model call completed",
		zap.String("model", g.model.Name()),
		zap.String("shape", raw.Kind.String()),
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("reply_chars", len(text)),
		zap.Duration("latency", latency))

	return Reply{Text: text, Status: StatusOK}
}
