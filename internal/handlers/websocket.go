package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/metrics"
	"github.com/balduz84/passdoo/internal/services/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

const (
	writeWait = 10 * time.Second

	// Per-connection request budget
	messageRate  = 20
	messageBurst = 40
)

// StateNotifier is the Session Manager as seen by the WebSocket hub
type StateNotifier interface {
	State() auth.State
	Subscribe(fn auth.Subscriber) func()
}

// WSMessage is every frame the hub sends
type WSMessage struct {
	RequestID json.RawMessage `json:"requestId,omitempty"`
	Type      string          `json:"type"`
	Payload   interface{}     `json:"payload"`
}

// AuthStateUpdate is pushed on every session state change
type AuthStateUpdate struct {
	State         auth.State `json:"state"`
	Authenticated bool       `json:"authenticated"`
}

// StatusUpdate is sent once when a client connects
type StatusUpdate struct {
	ServerInstanceID string          `json:"serverInstanceId"`
	Version          string          `json:"version"`
	Auth             AuthStateUpdate `json:"auth"`
}

type wsClient struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	limiter *rate.Limiter
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WebSocketHandler is the push-capable front-end channel: it answers
// messages and broadcasts session state changes.
type WebSocketHandler struct {
	dispatcher       Dispatcher
	state            StateNotifier
	logger           arbor.ILogger
	upgrader         websocket.Upgrader
	clients          map[*wsClient]struct{}
	mu               sync.RWMutex
	unsubscribe      func()
	serverInstanceID string // Clients use it to detect an agent restart
}

// NewWebSocketHandler creates the hub. checkOrigin decides which
// upgrade requests are accepted.
func NewWebSocketHandler(dispatcher Dispatcher, state StateNotifier, checkOrigin func(r *http.Request) bool, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		dispatcher:       dispatcher,
		state:            state,
		logger:           logger,
		clients:          make(map[*wsClient]struct{}),
		serverInstanceID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
	}
	h.unsubscribe = state.Subscribe(h.BroadcastAuthState)

	logger.Debug().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// Close stops listening for state changes and disconnects every client
func (h *WebSocketHandler) Close() {
	h.unsubscribe()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.mu.Lock()
		client.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "agent shutting down"),
			time.Now().Add(time.Second))
		client.mu.Unlock()
		client.conn.Close()
	}
	metrics.SetWSConnectionsActive(0)
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	client := &wsClient{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(messageRate), messageBurst),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetWSConnectionsActive(count)

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	// In-flight requests are abandoned when the client goes away
	ctx, cancel := context.WithCancel(context.Background())

	defer func() {
		cancel()

		h.mu.Lock()
		delete(h.clients, client)
		remaining := len(h.clients)
		h.mu.Unlock()
		metrics.SetWSConnectionsActive(remaining)

		conn.Close()
		h.logger.Debug().Int("clients", remaining).Msg("WebSocket client disconnected")
	}()

	h.sendStatus(client)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		h.handleFrame(ctx, client, data)
	}
}

// handleFrame answers one request frame in its own goroutine so a long
// login does not block the connection.
func (h *WebSocketHandler) handleFrame(ctx context.Context, client *wsClient, data []byte) {
	var envelope struct {
		RequestID json.RawMessage `json:"requestId"`
	}
	// Malformed frames still reach the router, which reports them
	_ = json.Unmarshal(data, &envelope)

	if !client.limiter.Allow() {
		h.send(client, WSMessage{
			RequestID: envelope.RequestID,
			Type:      "response",
			Payload:   map[string]string{"error": "too many requests", "code": "RATE_LIMITED"},
		})
		return
	}

	common.SafeGoWithContext(ctx, h.logger, "ws-message", func() {
		payload := h.dispatcher.Handle(ctx, data)
		if ctx.Err() != nil {
			return
		}
		h.send(client, WSMessage{
			RequestID: envelope.RequestID,
			Type:      "response",
			Payload:   payload,
		})
	})
}

func (h *WebSocketHandler) send(client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}
	if err := client.write(data); err != nil {
		h.logger.Debug().Err(err).Str("type", msg.Type).Msg("Failed to send WebSocket message")
	}
}

func (h *WebSocketHandler) sendStatus(client *wsClient) {
	state := h.state.State()
	h.send(client, WSMessage{
		Type: "status",
		Payload: StatusUpdate{
			ServerInstanceID: h.serverInstanceID,
			Version:          common.GetVersion(),
			Auth:             AuthStateUpdate{State: state, Authenticated: state.Authenticated()},
		},
	})
}

// BroadcastAuthState pushes a session state change to every client
func (h *WebSocketHandler) BroadcastAuthState(state auth.State) {
	data, err := json.Marshal(WSMessage{
		Type:    "auth_state",
		Payload: AuthStateUpdate{State: state, Authenticated: state.Authenticated()},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal auth state message")
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(data); err != nil {
			h.logger.Debug().Err(err).Msg("Failed to send auth state to client")
		}
	}
}
