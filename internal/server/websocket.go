package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msto63/spiritflow/internal/meditation"
	"github.com/msto63/spiritflow/internal/player"
	"github.com/msto63/spiritflow/pkg/core/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// WebSocket upgrader with permissive settings for local clients
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSMessage is a client request
type WSMessage struct {
	Type    string          `json:"type"` // "ping", "toggle", "stop", "intentions"
	Payload json.RawMessage `json:"payload"`
}

// WSFlowPayload addresses one flow
type WSFlowPayload struct {
	Flow      string `json:"flow"`
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
}

// WSResponse is a server message
type WSResponse struct {
	Type    string      `json:"type"` // "snapshot", "state", "notice", "generated", "pong", "error"
	Payload interface{} `json:"payload"`
}

// WSErrorPayload represents an error payload
type WSErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Hub fans controller events out to WebSocket clients and accepts
// toggle and intention commands from them.
type Hub struct {
	controllers   map[meditation.Flow]*player.Controller
	toggleTimeout time.Duration
	logger        *logging.Logger

	// toggles run on ctx, not on the connection that asked for them,
	// so a disconnect never aborts a generation other clients observe
	ctx     context.Context
	cancel  context.CancelFunc
	toggles sync.WaitGroup

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSResponse
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub over controllers
func NewHub(controllers map[meditation.Flow]*player.Controller, toggleTimeout time.Duration) *Hub {
	if toggleTimeout <= 0 {
		toggleTimeout = DefaultConfig().ToggleTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		controllers:   controllers,
		toggleTimeout: toggleTimeout,
		logger:        logging.New("websocket"),
		ctx:           ctx,
		cancel:        cancel,
		clients:       make(map[*wsClient]struct{}),
	}
}

// Broadcast delivers a controller event to every client. Slow clients
// that fill their buffer are dropped.
func (h *Hub) Broadcast(e player.Event) {
	resp := WSResponse{Type: e.Type.String(), Payload: e}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- resp:
		default:
			h.logger.Warn("Dropping slow WebSocket client", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade and connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan WSResponse, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	h.logger.Info("WebSocket connection established", "remote", conn.RemoteAddr().String())

	for _, f := range meditation.Flows {
		if ctrl, ok := h.controllers[f]; ok {
			h.reply(c, WSResponse{Type: "snapshot", Payload: ctrl.Snapshot()})
		}
	}

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop handles client requests until the connection closes
func (h *Hub) readLoop(c *wsClient) {
	defer func() {
		h.remove(c)
		h.wg.Done()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error", "error", err)
			} else {
				h.logger.Info("WebSocket connection closed")
			}
			return
		}

		if msg.Type == "ping" {
			h.reply(c, WSResponse{Type: "pong"})
			continue
		}

		var payload WSFlowPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(c, "invalid_payload", "Invalid payload")
			continue
		}
		flow, err := meditation.ParseFlow(payload.Flow)
		if err != nil {
			h.sendError(c, "unknown_flow", "Unknown flow: "+payload.Flow)
			continue
		}
		ctrl, ok := h.controllers[flow]
		if !ok {
			h.sendError(c, "unknown_flow", "Flow not served: "+payload.Flow)
			continue
		}

		switch msg.Type {
		case "toggle":
			h.toggle(ctrl)

		case "stop":
			ctrl.Stop()

		case "intentions":
			ctrl.SetIntentions(meditation.IntentionSet{
				Flow:      flow,
				Primary:   payload.Primary,
				Secondary: payload.Secondary,
			})
			h.reply(c, WSResponse{Type: "snapshot", Payload: ctrl.Snapshot()})

		default:
			h.sendError(c, "unknown_type", "Unknown message type: "+msg.Type)
		}
	}
}

// writeLoop is the only writer of the connection
func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case resp, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(resp); err != nil {
				h.logger.Error("Failed to send WebSocket message", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// toggle runs a toggle in the background. Failures reach every client as
// notice events.
func (h *Hub) toggle(ctrl *player.Controller) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.toggles.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.toggles.Done()
		ctx, cancel := context.WithTimeout(h.ctx, h.toggleTimeout)
		defer cancel()
		_ = ctrl.Toggle(ctx)
	}()
}

func (h *Hub) reply(c *wsClient, resp WSResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- resp:
	default:
	}
}

func (h *Hub) sendError(c *wsClient, code, message string) {
	h.reply(c, WSResponse{
		Type:    "error",
		Payload: WSErrorPayload{Code: code, Message: message},
	})
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close disconnects every client and cancels running toggles
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
		c.conn.Close()
	}
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
	h.toggles.Wait()
}
