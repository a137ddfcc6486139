package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"chatbot-backend/internal/metrics"
	"chatbot-backend/internal/models"
)

// EmptyMessageReply answers requests that carry no message.
const EmptyMessageReply = "I need a message to respond to!"

// Generator produces a continuation for a prompt. *ModelService implements it;
// tests substitute fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type ChatService struct {
	generator Generator
}

func NewChatService(generator Generator) *ChatService {
	return &ChatService{generator: generator}
}

// Respond turns one chat request into one reply. An empty message is answered
// with EmptyMessageReply and never reaches the generator.
func (s *ChatService) Respond(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if req.Message == "" {
		metrics.RecordChatRequest("fallback")
		return models.ChatResponse{Response: EmptyMessageReply}, nil
	}

	reply, err := s.generator.Generate(ctx, req.Message)
	if err != nil {
		metrics.RecordChatRequest("error")
		log.Ctx(ctx).Error().Err(err).Int("prompt_len", len(req.Message)).Msg("generation failed")
		return models.ChatResponse{}, err
	}

	metrics.RecordChatRequest("generated")
	return models.ChatResponse{Response: reply}, nil
}
