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
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llama3.2"
)

// OllamaModel uses a self-hosted Ollama server.
type OllamaModel struct {
	baseURL     string
	model       string
	temperature float32
	client      *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func NewOllamaModel(cfg Config) *OllamaModel {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &OllamaModel{
		baseURL:     baseURL,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.timeout()},
	}
}

func (m *OllamaModel) Name() string {
	return fmt.Sprintf("ollama:%s", m.model)
}

func (m *OllamaModel) Generate(ctx context.Context, prompt string) (normalize.Raw, error) {
	reqBody := ollamaRequest{
		Model:   m.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": m.temperature},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", m.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return normalize.Raw{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return normalize.Raw{}, fmt.Errorf("%w: Ollama returned status %d", ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp ollamaResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return normalize.Raw{}, fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return normalize.Raw{}, fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return normalize.Raw{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return classifyText(ollamaResp.Response), nil
}

func (m *OllamaModel) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", m.baseURL), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("Ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}
	return nil
}
