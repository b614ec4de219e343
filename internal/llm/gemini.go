package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/valpere/codeshift/internal/normalize"
)

const DefaultGeminiModel = "gemini-flash-latest"

// Part kinds produced from Gemini candidate parts.
const (
	partThought        = "thought"
	partFunctionCall   = "function_call"
	partExecutableCode = "executable_code"
	partOther          = "other"
)

// GeminiModel calls the Gemini API through the GenAI SDK.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGeminiModel creates a Gemini backend. An empty API key lets the SDK
// fall back to GOOGLE_API_KEY / GEMINI_API_KEY.
func NewGeminiModel(ctx context.Context, cfg Config) (*GeminiModel, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.timeout()},
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiModel{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

func (m *GeminiModel) Name() string {
	return fmt.Sprintf("gemini:%s", m.model)
}

// Generate sends prompt as a single user turn. Candidate parts are returned
// as content blocks so thoughts and tool calls never reach the caller as
// answer text.
func (m *GeminiModel) Generate(ctx context.Context, prompt string) (normalize.Raw, error) {
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
	})
	if err != nil {
		return normalize.Raw{}, classifyGeminiError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return normalize.Raw{}, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return normalize.Raw{}, ErrEmptyResponse
	}

	return normalize.FromBlocks(partsToBlocks(resp.Candidates[0].Content.Parts)), nil
}

func (m *GeminiModel) IsAvailable(ctx context.Context) error {
	if _, err := m.client.Models.Get(ctx, m.model, nil); err != nil {
		return fmt.Errorf("Gemini model %s not available: %w", m.model, classifyGeminiError(err))
	}
	return nil
}

func partsToBlocks(parts []*genai.Part) []normalize.Block {
	blocks := make([]normalize.Block, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		switch {
		case p.Thought:
			blocks = append(blocks, normalize.Block{Type: partThought, Text: p.Text})
		case p.FunctionCall != nil:
			blocks = append(blocks, normalize.Block{Type: partFunctionCall})
		case p.ExecutableCode != nil:
			blocks = append(blocks, normalize.Block{Type: partExecutableCode})
		case p.Text != "":
			blocks = append(blocks, normalize.Block{Type: normalize.BlockTypeText, Text: p.Text})
		default:
			blocks = append(blocks, normalize.Block{Type: partOther})
		}
	}
	return blocks
}

// classifyGeminiError maps quota failures onto ErrRateLimited.
func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isGeminiQuota(apiErr) {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isGeminiQuota(*apiErrPtr) {
		return fmt.Errorf("%w: %s", ErrRateLimited, apiErrPtr.Message)
	}
	return err
}

func isGeminiQuota(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}
