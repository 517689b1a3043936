// Package handlers provides the HTTP handlers of the acceptor.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stfn-ko/Wasabi/internal/ws"
)

// Spawner starts a session for an upgraded connection.
type Spawner interface {
	Spawn(conn ws.Conn, peer string)
}

// WebSocketHandler upgrades requests and hands the connections to a Spawner.
type WebSocketHandler struct {
	spawner Spawner
	upgrade func(w http.ResponseWriter, r *http.Request) (ws.Conn, error)
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(spawner Spawner) *WebSocketHandler {
	return &WebSocketHandler{
		spawner: spawner,
		upgrade: ws.Upgrade,
	}
}

// Attach handles GET / and GET /ws. A failed upgrade has already been answered
// by the upgrader, so it only aborts the gin chain.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	conn, err := h.upgrade(c.Writer, c.Request)
	if err != nil {
		_ = c.Error(err)
		c.Abort()
		return
	}

	h.spawner.Spawn(conn, peerIdentity(c.Request))
}

// peerIdentity prefers the proxy-reported client over the socket address.
func peerIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

// RegisterRoutes registers the upgrade routes.
func (h *WebSocketHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/", h.Attach)
	r.GET("/ws", h.Attach)
}
