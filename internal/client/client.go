// Package client is the initiator side: it dials one peer and runs a single
// session fed by the shared broadcaster.
package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stfn-ko/Wasabi/internal/broadcast"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/session"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/ws"
)

// Dialer opens a connection to addr. ws.Dial is the default.
type Dialer func(ctx context.Context, addr string) (ws.Conn, error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithJournal records the session in j.
func WithJournal(j session.Journal) Option {
	return func(c *Client) { c.journal = j }
}

// WithDialer replaces ws.Dial.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// Client connects to a single acceptor.
type Client struct {
	settings    *settings.Settings
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
	journal     session.Journal
	dial        Dialer

	mu      sync.Mutex
	session *session.Session
}

// New creates a Client for the address in cfg.
func New(cfg *settings.Settings, b *broadcast.Broadcaster, opts ...Option) *Client {
	c := &Client{
		settings:    cfg,
		broadcaster: b,
		logger:      slog.Default(),
		dial:        ws.Dial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run dials the peer and blocks until the session ends. Connection failures
// wrap model.ErrConnect or model.ErrHandshake; there are no retries.
func (c *Client) Run(ctx context.Context) error {
	addr, err := ws.URL(c.settings.Address())
	if err != nil {
		return err
	}

	c.logger.Info("connecting", "addr", addr)
	conn, err := c.dial(ctx, addr)
	if err != nil {
		c.logger.Error("connect failed", "addr", addr, "error", err, "kind", model.ErrorKind(err))
		return err
	}

	sess := session.New(session.Config{
		Role:         model.RoleInitiator,
		Peer:         addr,
		Settings:     c.settings,
		Conn:         conn,
		Subscription: c.broadcaster.Subscribe(),
		Logger:       c.logger,
		Metrics:      c.metrics,
		Journal:      c.journal,
	})

	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()

	return sess.Run(ctx)
}

// Session returns the running session, or nil before the connection is made.
func (c *Client) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
