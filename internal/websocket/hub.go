package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatbot-backend/internal/metrics"
	"chatbot-backend/internal/models"
	"chatbot-backend/internal/services"
)

const (
	maxFrameBytes = 1 << 20
	writeWait     = 10 * time.Second
)

type chatResponder interface {
	Respond(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error)
}

// Hub serves chat over WebSocket. Each text frame is one chat request and
// gets exactly one reply frame, in order.
type Hub struct {
	chat     chatResponder
	upgrader websocket.Upgrader

	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}
	closed      bool
}

func NewHub(chat chatResponder, allowedOrigins []string) *Hub {
	return &Hub{
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		connections: make(map[*websocket.Conn]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket upgrades the request and serves frames until the peer
// disconnects or the hub is closed.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if !h.register(conn) {
		conn.Close()
		return
	}
	defer h.unregister(conn)

	conn.SetReadLimit(maxFrameBytes)
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requestID := r.Header.Get("X-Request-ID")
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Ctx(ctx).Debug().Err(err).Msg("websocket closed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		if err := h.write(conn, h.reply(ctx, data, requestID)); err != nil {
			log.Ctx(ctx).Debug().Err(err).Msg("websocket write failed")
			return
		}
	}
}

func (h *Hub) reply(ctx context.Context, data []byte, requestID string) interface{} {
	req, err := models.DecodeChatRequest(data)
	if err != nil {
		metrics.RecordChatRequest("invalid")
		return frameError("INVALID_JSON", "Frame must be a JSON object", requestID)
	}

	resp, err := h.chat.Respond(ctx, req)
	if err != nil {
		var busy *services.BusyError
		if errors.As(err, &busy) {
			return frameError("MODEL_BUSY", busy.Message, requestID)
		}
		return frameError("GENERATION_FAILED", "Failed to generate a response", requestID)
	}
	return resp
}

func frameError(code, message, requestID string) models.ErrorResponse {
	return models.ErrorResponse{Error: models.APIError{Code: code, Message: message, RequestID: requestID}}
}

func (h *Hub) write(conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) register(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.connections[conn] = struct{}{}
	log.Debug().Int("connections", len(h.connections)).Msg("websocket connected")
	return true
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.connections, conn)
	log.Debug().Int("connections", len(h.connections)).Msg("websocket disconnected")
}

// ActiveConnections reports how many sockets are currently open.
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.connections)
}

// Close drops every open socket and refuses new ones. http.Server.Shutdown
// does not wait for hijacked connections, so main calls this on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.connections {
		conn.Close()
	}
}
