package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatbot-backend/internal/models"
	"chatbot-backend/internal/services"
)

type echoResponder struct {
	err error
}

func (e echoResponder) Respond(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	if e.err != nil {
		return models.ChatResponse{}, e.err
	}
	if req.Message == "" {
		return models.ChatResponse{Response: services.EmptyMessageReply}, nil
	}
	return models.ChatResponse{Response: "echo: " + req.Message}, nil
}

func dial(t *testing.T, hub *Hub, origin string) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, srv
}

func TestHub_RepliesInOrder(t *testing.T) {
	hub := NewHub(echoResponder{}, []string{"http://localhost:3000"})
	conn, srv := dial(t, hub, "http://localhost:3000")
	defer srv.Close()
	defer conn.Close()

	for _, msg := range []string{"first", "second"} {
		if err := conn.WriteJSON(models.ChatRequest{Message: msg}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	for _, want := range []string{"echo: first", "echo: second"} {
		var resp models.ChatResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		if resp.Response != want {
			t.Fatalf("expected %q, got %q", want, resp.Response)
		}
	}
}

func TestHub_ErrorFrames(t *testing.T) {
	tests := []struct {
		name     string
		chat     echoResponder
		frame    string
		wantCode string
	}{
		{"malformed", echoResponder{}, `not json`, "INVALID_JSON"},
		{"null", echoResponder{}, `null`, "INVALID_JSON"},
		{"busy", echoResponder{err: &services.BusyError{Message: "busy"}}, `{"message":"hi"}`, "MODEL_BUSY"},
		{"generation", echoResponder{err: &services.GenerationError{Backend: "fake", Err: errors.New("boom")}}, `{"message":"hi"}`, "GENERATION_FAILED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, srv := dial(t, NewHub(tc.chat, nil), "")
			defer srv.Close()
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.frame)); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp models.ErrorResponse
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Error.Code != tc.wantCode {
				t.Fatalf("expected %s, got %+v", tc.wantCode, resp)
			}
		})
	}
}

func TestHub_SocketSurvivesBadFrame(t *testing.T) {
	conn, srv := dial(t, NewHub(echoResponder{}, nil), "")
	defer srv.Close()
	defer conn.Close()

	conn.WriteMessage(websocket.TextMessage, []byte(`{`))
	var errResp models.ErrorResponse
	if err := conn.ReadJSON(&errResp); err != nil {
		t.Fatalf("read: %v", err)
	}

	conn.WriteJSON(models.ChatRequest{})
	var resp models.ChatResponse
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Response != services.EmptyMessageReply {
		t.Fatalf("expected fallback reply, got %q", resp.Response)
	}
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(echoResponder{}, []string{"http://localhost:3000"})
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err == nil {
		t.Fatal("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", resp)
	}
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(echoResponder{}, nil)
	conn, srv := dial(t, hub, "")
	defer srv.Close()
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ActiveConnections() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("connection was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Close()
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read to fail after hub close")
	}
}
