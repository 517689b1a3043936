package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stfn-ko/Wasabi/internal/model"
)

const handshakeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var dialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: handshakeTimeout,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// URL normalizes addr into a ws:// URL. A bare host:port gets the ws scheme and root path.
func URL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", model.ErrAddressRequired
	}
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrInvalidAddress, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", model.ErrInvalidAddress, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", model.ErrInvalidAddress, addr)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// Dial opens an initiator connection to addr. A rejected upgrade fails with
// model.ErrHandshake; any other failure with model.ErrConnect.
func Dial(ctx context.Context, addr string) (Conn, error) {
	target, err := URL(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrConnect, err)
	}

	wsConn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			return nil, fmt.Errorf("%w: %s answered %d", model.ErrHandshake, target, status)
		}
		return nil, fmt.Errorf("%w: %s: %v", model.ErrConnect, target, err)
	}
	return NewConn(wsConn), nil
}

// Upgrade performs the acceptor handshake. On failure the upgrader has already
// written an HTTP error response.
func Upgrade(w http.ResponseWriter, r *http.Request) (Conn, error) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrHandshake, err)
	}
	return NewConn(wsConn), nil
}
