package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chatbot-backend/internal/models"
	"chatbot-backend/internal/services"
)

type stubGenerator struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return prompt + " -> generated continuation", nil
}

func (s *stubGenerator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func newChatHandler(gen services.Generator) *ChatHandler {
	return NewChatHandler(services.NewChatService(gen))
}

func postChat(h *ChatHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.Chat(rr, req)
	return rr
}

func decodeChatResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func TestChatHandler_EmptyMessageFallback(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"empty message", `{"message": ""}`},
		{"null message", `{"message": null}`},
		{"unrelated fields", `{"text": "hi", "history": []}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{}
			rr := postChat(newChatHandler(gen), tc.body)

			if rr.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
			}
			payload := decodeChatResponse(t, rr)
			if len(payload) != 1 || payload["response"] != "I need a message to respond to!" {
				t.Fatalf("unexpected payload: %v", payload)
			}
			if gen.calls() != 0 {
				t.Fatalf("model must not be invoked, got %d calls", gen.calls())
			}
		})
	}
}

func TestChatHandler_Hello(t *testing.T) {
	gen := &stubGenerator{}
	rr := postChat(newChatHandler(gen), `{"message": "Hello"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got %q", ct)
	}
	payload := decodeChatResponse(t, rr)
	reply, ok := payload["response"].(string)
	if !ok || reply == "" {
		t.Fatalf("expected non-empty response string, got %v", payload)
	}
	if !strings.Contains(reply, "Hello") {
		t.Errorf("expected decoded generation, got %q", reply)
	}
	if gen.calls() != 1 {
		t.Fatalf("expected exactly one model call, got %d", gen.calls())
	}
}

func TestChatHandler_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"absent body", ``},
		{"plain text", `hello there`},
		{"truncated json", `{"message": "Hel`},
		{"json null", `null`},
		{"json array", `["Hello"]`},
		{"non-string message", `{"message": 42}`},
		{"trailing garbage", `{"message": "Hello"} extra`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gen := &stubGenerator{}
			rr := postChat(newChatHandler(gen), tc.body)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rr.Code)
			}
			var errResp models.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("failed to decode error: %v", err)
			}
			if errResp.Error.Code != "INVALID_JSON" || errResp.Error.RequestID != "req-123" {
				t.Fatalf("unexpected error payload: %+v", errResp)
			}
			if gen.calls() != 0 {
				t.Fatalf("model must not be invoked for malformed input")
			}
		})
	}
}

func TestChatHandler_BodyTooLarge(t *testing.T) {
	body := `{"message": "` + strings.Repeat("a", maxChatBodyBytes) + `"}`
	rr := postChat(newChatHandler(&stubGenerator{}), body)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, rr.Code)
	}
}

func TestChatHandler_GenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: &services.GenerationError{Backend: "fake", Err: errors.New("out of memory")}}
	rr := postChat(newChatHandler(gen), `{"message": "Hello"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
	var errResp models.ErrorResponse
	json.NewDecoder(rr.Body).Decode(&errResp)
	if errResp.Error.Code != "GENERATION_FAILED" {
		t.Fatalf("unexpected error code %q", errResp.Error.Code)
	}
	if strings.Contains(errResp.Error.Message, "out of memory") {
		t.Fatalf("backend details must not leak to clients: %q", errResp.Error.Message)
	}
}

func TestChatHandler_Busy(t *testing.T) {
	gen := &stubGenerator{err: &services.BusyError{Message: "timeout waiting for a model slot"}}
	rr := postChat(newChatHandler(gen), `{"message": "Hello"}`)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
}

func TestChatHandler_UnknownError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("something else")}
	rr := postChat(newChatHandler(gen), `{"message": "Hello"}`)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, rr.Code)
	}
}

func TestChatHandler_ConcurrentRequestsAreIndependent(t *testing.T) {
	gen := &stubGenerator{}
	h := newChatHandler(gen)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := fmt.Sprintf("message number %d", i)
			body, _ := json.Marshal(models.ChatRequest{Message: msg})
			rr := postChat(h, string(body))

			var resp models.ChatResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				errs <- err
				return
			}
			if want := msg + " -> generated continuation"; resp.Response != want {
				errs <- fmt.Errorf("request %d got %q, want %q", i, resp.Response, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if gen.calls() != n {
		t.Fatalf("expected %d model calls, got %d", n, gen.calls())
	}
}

type stubModelInfo struct{}

func (stubModelInfo) ModelName() string   { return "gpt2" }
func (stubModelInfo) BackendName() string { return "tgi" }

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(stubModelInfo{}).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var payload map[string]string
	json.NewDecoder(rr.Body).Decode(&payload)
	if payload["status"] != "ok" || payload["model"] != "gpt2" || payload["backend"] != "tgi" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}
