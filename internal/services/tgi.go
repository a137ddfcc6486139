package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// TGIBackend talks to a Hugging Face text-generation-inference server, which
// owns the pretrained weights and tokenizer for the configured model.
type TGIBackend struct {
	baseURL    string
	modelName  string
	httpClient *http.Client
}

func NewTGIBackend(baseURL, modelName string) *TGIBackend {
	return &TGIBackend{
		baseURL:    baseURL,
		modelName:  modelName,
		httpClient: &http.Client{},
	}
}

type tgiParameters struct {
	MaxNewTokens   int      `json:"max_new_tokens"`
	DoSample       bool     `json:"do_sample"`
	Temperature    *float32 `json:"temperature,omitempty"`
	ReturnFullText bool     `json:"return_full_text"`
}

type tgiGenerateRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters tgiParameters `json:"parameters"`
}

type tgiGenerateResponse struct {
	GeneratedText string `json:"generated_text"`
}

type tgiInfo struct {
	ModelID string `json:"model_id"`
}

type tgiError struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

func (b *TGIBackend) Name() string { return "tgi" }

// Load waits for the server to report the model it serves.
func (b *TGIBackend) Load(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/info", nil)
	if err != nil {
		return fmt.Errorf("error creating info request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error reaching text-generation-inference: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("info endpoint returned %d", resp.StatusCode)
	}

	var info tgiInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("error decoding info: %w", err)
	}
	if info.ModelID != "" && info.ModelID != b.modelName {
		return fmt.Errorf("%w: server runs %q, want %q", ErrModelNotFound, info.ModelID, b.modelName)
	}
	return nil
}

func (b *TGIBackend) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	payload := tgiGenerateRequest{
		Inputs: prompt,
		Parameters: tgiParameters{
			MaxNewTokens:   params.MaxLength,
			DoSample:       params.DoSample,
			ReturnFullText: params.ReturnFullText,
		},
	}
	if params.DoSample {
		t := params.Temperature
		payload.Parameters.Temperature = &t
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e tgiError
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("text-generation-inference returned %d (%s): %s", resp.StatusCode, e.ErrorType, e.Error)
		}
		return "", fmt.Errorf("text-generation-inference returned %d", resp.StatusCode)
	}

	var result tgiGenerateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}

	return result.GeneratedText, nil
}

func (b *TGIBackend) Close() error {
	b.httpClient.CloseIdleConnections()
	return nil
}
