package handlers

import (
	"net/http"

	"chat-gateway/internal/gateway"
	"chat-gateway/internal/metrics"
	ws "chat-gateway/internal/websocket"
	"chat-gateway/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	gateway  *gateway.Gateway
	opts     ws.Options
	metrics  *metrics.Gateway
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(gw *gateway.Gateway, opts ws.Options, m *metrics.Gateway) *WebSocketHandlers {
	return &WebSocketHandlers{
		gateway: gw,
		opts:    opts,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(r *http.Request) bool { return true }, // Configure for production
			Subprotocols: []string{bearerSubprotocol},
		},
	}
}

// HandleWebSocket upgrades the request and hands the connection to the
// gateway. A failed handshake is reported in the close frame.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := ExtractToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(conn, h.opts, h.metrics)
	sess, err := h.gateway.Connect(client.Context(), token, client)
	if err != nil {
		logger.Warn("Rejected websocket from %s: %v", r.RemoteAddr, err)
		client.Reject(err)
		return
	}

	go client.WritePump()
	go client.ReadPump(sess)
}
