package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// OllamaBackend is a tiny client for a local Ollama server.
type OllamaBackend struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
}

func NewOllamaBackend(baseURL, modelName string) *OllamaBackend {
	return &OllamaBackend{
		baseURL:    baseURL,
		modelName:  modelName,
		httpClient: &http.Client{},
	}
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Raw     bool          `json:"raw"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (b *OllamaBackend) Name() string { return "ollama" }

// Load checks that the model has been pulled.
func (b *OllamaBackend) Load(ctx context.Context) error {
	jsonData, _ := json.Marshal(map[string]string{"model": b.modelName})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/show", bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating show request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error reaching ollama: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: ollama has no model %q", ErrModelNotFound, b.modelName)
	default:
		return fmt.Errorf("ollama show returned %d", resp.StatusCode)
	}
}

func (b *OllamaBackend) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	opts := ollamaOptions{NumPredict: params.MaxLength}
	if params.DoSample {
		opts.Temperature = params.Temperature
	}

	jsonData, err := json.Marshal(ollamaGenerateRequest{
		Model:   b.modelName,
		Prompt:  prompt,
		Raw:     true,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	var result ollamaGenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || result.Error != "" {
		return "", fmt.Errorf("ollama returned %d: %s", resp.StatusCode, result.Error)
	}

	if params.ReturnFullText {
		return prompt + result.Response, nil
	}
	return result.Response, nil
}

func (b *OllamaBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}
