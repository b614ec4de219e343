package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/valpere/codeshift/internal/normalize"
)

const (
	DefaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	DefaultOpenRouterModel = "google/gemini-2.5-flash"
)

// OpenRouterModel talks to the OpenRouter chat completions API.
type OpenRouterModel struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

type openRouterError struct {
	Code    json.Number `json:"code"`
	Message string      `json:"message"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			// Either a string or a list of typed content parts.
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *openRouterError `json:"error,omitempty"`
}

func NewOpenRouterModel(cfg Config) *OpenRouterModel {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouterModel{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.timeout()},
	}
}

func (m *OpenRouterModel) Name() string {
	return fmt.Sprintf("openrouter:%s", m.model)
}

func (m *OpenRouterModel) Generate(ctx context.Context, prompt string) (normalize.Raw, error) {
	if m.apiKey == "" {
		return normalize.Raw{}, fmt.Errorf("OpenRouter API key required")
	}

	reqBody := map[string]interface{}{
		"model": m.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": m.temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", m.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))
	httpReq.Header.Set("HTTP-Referer", "https://codeshift.local")
	httpReq.Header.Set("X-Title", "codeshift")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var orResp openRouterResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&orResp)

	if resp.StatusCode == http.StatusTooManyRequests || (orResp.Error != nil && orResp.Error.Code.String() == "429") {
		msg := ""
		if orResp.Error != nil {
			msg = orResp.Error.Message
		}
		return normalize.Raw{}, fmt.Errorf("%w: %s", ErrRateLimited, msg)
	}
	if resp.StatusCode != http.StatusOK {
		if orResp.Error != nil {
			return normalize.Raw{}, fmt.Errorf("API returned status %d: %s", resp.StatusCode, orResp.Error.Message)
		}
		return normalize.Raw{}, fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return normalize.Raw{}, fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if orResp.Error != nil {
		return normalize.Raw{}, fmt.Errorf("API error %s: %s", orResp.Error.Code, orResp.Error.Message)
	}
	if len(orResp.Choices) == 0 {
		return normalize.Raw{}, ErrEmptyResponse
	}

	return decodeContent(orResp.Choices[0].Message.Content)
}

// decodeContent accepts the string and content-part forms of a message.
func decodeContent(raw json.RawMessage) (normalize.Raw, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return normalize.Plain(""), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return classifyText(text), nil
	}

	var blocks []normalize.Block
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return normalize.Raw{}, fmt.Errorf("unexpected message content: %w", err)
	}
	return normalize.FromBlocks(blocks), nil
}

func (m *OpenRouterModel) IsAvailable(ctx context.Context) error {
	if m.apiKey == "" {
		return fmt.Errorf("OpenRouter API key not configured")
	}
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/models", m.baseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", m.apiKey))
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("OpenRouter not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("OpenRouter returned status %d", resp.StatusCode)
	}
	return nil
}
