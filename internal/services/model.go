package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"chatbot-backend/internal/metrics"
)

// DefaultModelName selects the pretrained model and tokenizer loaded at startup.
const DefaultModelName = "gpt2"

// GenerationParams is passed unchanged to the backend on every call.
type GenerationParams struct {
	MaxLength      int
	DoSample       bool
	Temperature    float32
	ReturnFullText bool
}

func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		MaxLength:      150,
		DoSample:       true,
		Temperature:    0.7,
		ReturnFullText: true,
	}
}

// Backend is the runtime that owns the model weights and tokenizer. Load is
// called once before serving; Generate must be safe for concurrent use.
type Backend interface {
	Name() string
	Load(ctx context.Context) error
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Close() error
}

// specialTokens are control tokens stripped from decoded output.
var specialTokens = strings.NewReplacer(
	"<|endoftext|>", "",
	"<|eot_id|>", "",
	"<|end|>", "",
	"<s>", "",
	"</s>", "",
	"<pad>", "",
	"<unk>", "",
)

func StripSpecialTokens(text string) string {
	return specialTokens.Replace(text)
}

type ModelOptions struct {
	ModelName string
	// Concurrency caps parallel generations; 0 means unlimited.
	Concurrency       int
	AcquireTimeout    time.Duration
	LoadTimeout       time.Duration
	LoadRetryInterval time.Duration
	// GenerationTimeout bounds one backend call; 0 means none.
	GenerationTimeout time.Duration
}

// ModelService is the process-wide handle on a loaded model. It is immutable
// after construction and shared by all requests without locking.
type ModelService struct {
	backend           Backend
	modelName         string
	params            GenerationParams
	slots             chan struct{} // Token bucket, nil when unlimited
	acquireTimeout    time.Duration
	generationTimeout time.Duration
}

// NewModelService loads the model through backend and fails if it cannot be
// loaded within opts.LoadTimeout.
func NewModelService(ctx context.Context, backend Backend, opts ModelOptions) (*ModelService, error) {
	if opts.ModelName == "" {
		opts.ModelName = DefaultModelName
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 5 * time.Minute
	}
	if opts.LoadRetryInterval <= 0 {
		opts.LoadRetryInterval = 2 * time.Second
	}

	if err := loadWithRetry(ctx, backend, opts); err != nil {
		return nil, fmt.Errorf("failed to load model %q via %s: %w", opts.ModelName, backend.Name(), err)
	}

	var slots chan struct{}
	if opts.Concurrency > 0 {
		slots = make(chan struct{}, opts.Concurrency)
		for i := 0; i < opts.Concurrency; i++ {
			slots <- struct{}{}
		}
	}

	return &ModelService{
		backend:           backend,
		modelName:         opts.ModelName,
		params:            DefaultGenerationParams(),
		slots:             slots,
		acquireTimeout:    opts.AcquireTimeout,
		generationTimeout: opts.GenerationTimeout,
	}, nil
}

func loadWithRetry(ctx context.Context, backend Backend, opts ModelOptions) error {
	if opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.LoadTimeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		err := backend.Load(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrModelNotFound) || opts.LoadTimeout <= 0 {
			return err
		}

		log.Warn().Err(err).Int("attempt", attempt).Str("backend", backend.Name()).Msg("model not ready, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		case <-time.After(opts.LoadRetryInterval):
		}
	}
}

func (s *ModelService) ModelName() string { return s.modelName }

func (s *ModelService) BackendName() string { return s.backend.Name() }

func (s *ModelService) Params() GenerationParams { return s.params }

func (s *ModelService) Close() error {
	return s.backend.Close()
}

// acquire blocks until a generation slot is available
func (s *ModelService) acquire(ctx context.Context) error {
	if s.slots == nil {
		return nil
	}
	select {
	case <-s.slots:
		return nil
	case <-ctx.Done():
		return &BusyError{Message: "request cancelled while waiting for the model"}
	case <-time.After(s.acquireTimeout):
		return &BusyError{Message: "timeout waiting for a model slot"}
	}
}

func (s *ModelService) release() {
	if s.slots != nil {
		s.slots <- struct{}{}
	}
}

// Generate runs the backend with the fixed generation params and returns the
// decoded text with special tokens removed. Backend panics are returned as a
// *GenerationError.
func (s *ModelService) Generate(ctx context.Context, prompt string) (text string, err error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()

	if s.generationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.generationTimeout)
		defer cancel()
	}

	name := s.backend.Name()
	metrics.GenerationStarted()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &GenerationError{Backend: name, Err: fmt.Errorf("panic: %v", r)}
		}
		metrics.GenerationFinished()
		metrics.ObserveGeneration(name, err == nil, time.Since(start))
	}()

	raw, err := s.backend.Generate(ctx, prompt, s.params)
	if err != nil {
		return "", &GenerationError{Backend: name, Err: err}
	}

	// Whitespace is a valid reply: the echoed prompt may be whitespace only.
	text = StripSpecialTokens(raw)
	if text == "" {
		return "", &GenerationError{Backend: name, Err: ErrEmptyGeneration}
	}

	log.Ctx(ctx).Debug().
		Str("backend", name).
		Dur("took", time.Since(start)).
		Int("chars", len(text)).
		Msg("generation complete")

	return text, nil
}
