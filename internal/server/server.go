// Package server is the acceptor side: it serves WebSocket upgrades and runs
// one session per accepted connection, all fed by a shared broadcaster.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stfn-ko/Wasabi/api/handlers"
	"github.com/stfn-ko/Wasabi/internal/broadcast"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/repository"
	"github.com/stfn-ko/Wasabi/internal/session"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/ws"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithJournal records every session in repo and exposes it under /api/sessions.
func WithJournal(repo *repository.SessionRepository) Option {
	return func(s *Server) { s.journal = repo }
}

// Server accepts connections and owns their sessions.
type Server struct {
	settings    *settings.Settings
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
	journal     *repository.SessionRepository
	engine      *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	live   atomic.Int64

	mu     sync.Mutex
	closed bool
	addr   net.Addr
}

// New creates a Server. Sessions subscribe to b when they are spawned.
func New(cfg *settings.Settings, b *broadcast.Broadcaster, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		settings:    cfg,
		broadcaster: b,
		logger:      slog.Default(),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))

	handlers.NewWebSocketHandler(s).RegisterRoutes(engine)

	var journal handlers.JournalReader
	if s.journal != nil {
		journal = s.journal
	}
	handlers.NewSessionHandler(s, journal).RegisterRoutes(engine, engine.Group("/api"))

	s.engine = engine
	return s
}

// Handler returns the HTTP handler serving upgrades, /health and /api.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Spawn starts a session for conn. It returns immediately; the session runs
// until the peer leaves or the server shuts down.
func (s *Server) Spawn(conn ws.Conn, peer string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	cfg := session.Config{
		Role:         model.RoleAcceptor,
		Peer:         peer,
		Settings:     s.settings,
		Conn:         conn,
		Subscription: s.broadcaster.Subscribe(),
		Logger:       s.logger,
		Metrics:      s.metrics,
	}
	if s.journal != nil {
		cfg.Journal = s.journal
	}
	sess := session.New(cfg)

	s.live.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.live.Add(-1)
		_ = sess.Run(s.ctx)
	}()
}

// LiveSessions returns the number of sessions that have not finished.
func (s *Server) LiveSessions() int {
	return int(s.live.Load())
}

// Receivers returns the number of live broadcast subscriptions.
func (s *Server) Receivers() int {
	return s.broadcaster.ReceiverCount()
}

// Addr returns the bound address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe binds the configured address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr, err := listenAddress(s.settings.Address())
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrConnect, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then stops accepting,
// closes every session and waits for them to finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	httpSrv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()
	s.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("%w: %w", model.ErrConnect, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown failed", "error", err)
	}
	s.Shutdown()
	s.logger.Info("server stopped")
	return nil
}

// Shutdown closes every session and waits for them. New connections are
// refused afterwards. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// listenAddress accepts host:port or a ws:// URL and returns host:port.
func listenAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", model.ErrAddressRequired
	}
	if !strings.Contains(addr, "://") {
		return addr, nil
	}
	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", model.ErrInvalidAddress, addr)
	}
	return u.Host, nil
}

// requestLogger logs plain HTTP requests. Upgraded connections are logged by their session.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.IsWebsocket() {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
