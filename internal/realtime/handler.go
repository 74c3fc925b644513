package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"villagewalks/backend/internal/authctx"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Handler upgrades HTTP requests to village channel connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHandler accepts upgrades from the given origins; an empty list accepts
// any origin.
func NewHandler(hub *Hub, allowedOrigins []string, log *zap.Logger) *Handler {
	allowed := map[string]bool{}
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caller, _ := authctx.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		ID:   uuid.NewString(),
		UID:  caller.UID,
		Send: make(chan []byte, sendBuffer),
	}
	if !h.hub.Register(c) {
		_ = conn.Close()
		return
	}
	h.log.Debug("client connected", zap.String("client", c.ID), zap.String("uid", c.UID))

	go h.writePump(conn, c)
	h.readPump(conn, c)
}

func (h *Handler) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		h.hub.Unregister(c)
		_ = conn.Close()
		h.log.Debug("client disconnected", zap.String("client", c.ID))
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read error", zap.String("client", c.ID), zap.Error(err))
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.log.Debug("ignoring malformed frame", zap.String("client", c.ID))
			continue
		}
		switch in.Type {
		case TypeJoinVillage:
			h.hub.Join(c, in.Village)
		default:
			h.log.Debug("ignoring frame", zap.String("client", c.ID), zap.String("type", in.Type))
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
