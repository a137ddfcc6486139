package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GeminiBackend generates through the Gemini API. The hosted model owns the
// tokenizer, so prompts are sent as plain text.
type GeminiBackend struct {
	client    *genai.Client
	modelName string
}

func NewGeminiBackend(ctx context.Context, apiKey, modelName string) (*GeminiBackend, error) {
	return newGeminiBackend(ctx, modelName, option.WithAPIKey(apiKey))
}

func newGeminiBackend(ctx context.Context, modelName string, opts ...option.ClientOption) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiBackend{client: client, modelName: modelName}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

func (b *GeminiBackend) Load(ctx context.Context) error {
	info, err := b.client.GenerativeModel(b.modelName).Info(ctx)
	if err != nil {
		return fmt.Errorf("Gemini model lookup failed: %w", err)
	}
	log.Info().
		Str("model", info.Name).
		Int32("output_token_limit", info.OutputTokenLimit).
		Msg("Gemini model available")
	return nil
}

// model builds a per-call handle so concurrent requests never share mutable
// generation config.
func (b *GeminiBackend) model(params GenerationParams) *genai.GenerativeModel {
	m := b.client.GenerativeModel(b.modelName)
	m.SetCandidateCount(1)
	m.SetMaxOutputTokens(int32(params.MaxLength))
	if params.DoSample {
		m.SetTemperature(params.Temperature)
	} else {
		m.SetTemperature(0)
	}
	return m
}

func (b *GeminiBackend) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	resp, err := b.model(params).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return geminiReply(ctx, prompt, resp, params), nil
}

// geminiReply flattens the candidates and echoes the prompt when the params
// ask for the full text.
func geminiReply(ctx context.Context, prompt string, resp *genai.GenerateContentResponse, params GenerationParams) string {
	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop && cand.FinishReason != genai.FinishReasonMaxTokens {
			log.Ctx(ctx).Warn().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	text := extractText(resp)
	if params.ReturnFullText && text != "" {
		return prompt + text
	}
	return text
}

func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
