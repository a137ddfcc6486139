package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaBackend_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/show" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] == "llama3" {
			w.Write([]byte(`{"modelfile":"FROM llama3"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	if err := NewOllamaBackend(srv.URL, "llama3").Load(context.Background()); err != nil {
		t.Fatalf("Load(llama3): %v", err)
	}
	err := NewOllamaBackend(srv.URL, "gpt2").Load(context.Background())
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestOllamaBackend_Generate(t *testing.T) {
	var got ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"response":" there.","done":true}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL, "llama3")
	text, err := b.Generate(context.Background(), "Hello", DefaultGenerationParams())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello there." {
		t.Fatalf("expected prompt echoed before continuation, got %q", text)
	}
	if got.Model != "llama3" || got.Prompt != "Hello" || !got.Raw || got.Stream {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Options.NumPredict != 150 || got.Options.Temperature != 0.7 {
		t.Errorf("unexpected options: %+v", got.Options)
	}

	params := DefaultGenerationParams()
	params.ReturnFullText = false
	params.DoSample = false
	text, err = b.Generate(context.Background(), "Hello", params)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != " there." {
		t.Fatalf("expected continuation only, got %q", text)
	}
	if got.Options.Temperature != 0 {
		t.Errorf("greedy decoding should send temperature 0, got %v", got.Options.Temperature)
	}
}

func TestOllamaBackend_GenerateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model runner crashed"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaBackend(srv.URL, "llama3").Generate(context.Background(), "Hello", DefaultGenerationParams())
	if err == nil {
		t.Fatal("expected error")
	}
}
