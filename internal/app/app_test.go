package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/logger"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/ws"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

const waitTimeout = 3 * time.Second

// chanSource delivers keys pushed by the test.
type chanSource struct {
	keys chan key.Key
	once sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{keys: make(chan key.Key, 8)}
}

func (s *chanSource) ReadKey() (key.Key, error) {
	k, ok := <-s.keys
	if !ok {
		return key.Key{}, io.EOF
	}
	return k, nil
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.keys) })
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func dialRetry(t *testing.T, addr string) ws.Conn {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		conn, err := ws.Dial(ctx, addr)
		cancel()
		if err == nil {
			t.Cleanup(func() { conn.Close() })
			return conn
		}
		if time.Now().After(deadline) {
			t.Fatalf("dial failed: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn ws.Conn) message.Message {
	t.Helper()
	ch := make(chan message.Message, 1)
	go func() {
		msg, err := conn.ReadMessage()
		if err == nil {
			ch <- msg
		}
	}()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame")
	}
	return message.Message{}
}

func TestAcceptorPublishesKeysAndQuits(t *testing.T) {
	addr := freeAddr(t)
	cfg, err := settings.NewBuilder().
		Address(addr).
		OnConnectMessage(message.Text("welcome")).
		BindMessage(key.Char('t'), message.Text("server test message")).
		Build()
	if err != nil {
		t.Fatalf("failed to build settings: %v", err)
	}

	src := newChanSource()
	journal := filepath.Join(t.TempDir(), "data", "sessions.db")
	metricsOut := &syncBuffer{}

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), Options{
			Role:            model.RoleAcceptor,
			Settings:        cfg,
			JournalPath:     journal,
			MetricsOutput:   metricsOut,
			MetricsInterval: time.Hour,
			Logger:          logger.Discard(),
			Source:          src,
		})
	}()

	conn := dialRetry(t, addr)
	if got := readFrame(t, conn); !got.Equal(message.Text("welcome")) {
		t.Fatalf("expected greeting, got %v", got)
	}

	src.keys <- key.Char('z')
	src.keys <- key.Char('t')
	if got := readFrame(t, conn); !got.Equal(message.Text("server test message")) {
		t.Errorf("expected bound message, got %v", got)
	}

	src.keys <- key.Ctrl('c')
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil after quit, got %v", err)
		}
	case <-time.After(waitTimeout * 2):
		t.Fatal("app did not stop on the quit key")
	}

	if _, err := os.Stat(journal); err != nil {
		t.Errorf("expected journal file: %v", err)
	}
	// The hourly ticker never fires, so this is the report written on return.
	if out := metricsOut.String(); !strings.Contains(out, metrics.KeysPublished) {
		t.Errorf("expected a final metrics report by the time Run returns, got %q", out)
	}
}

func TestInitiatorEndsWithConnection(t *testing.T) {
	greeted := make(chan message.Message, 1)
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Upgrade(w, r)
		if err != nil {
			return
		}
		defer conn.Close()
		if msg, err := conn.ReadMessage(); err == nil {
			greeted <- msg
		}
		conn.WriteMessage(message.NormalClose())
		conn.ReadMessage()
	}))
	defer peer.Close()

	cfg, err := settings.NewBuilder().
		Address(peer.URL).
		OnConnectMessage(message.Text("hello server")).
		Build()
	if err != nil {
		t.Fatalf("failed to build settings: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- Run(context.Background(), Options{
			Role:     model.RoleInitiator,
			Settings: cfg,
			Logger:   logger.Discard(),
			Source:   newChanSource(),
		})
	}()

	select {
	case msg := <-greeted:
		if !msg.Equal(message.Text("hello server")) {
			t.Errorf("expected greeting, got %v", msg)
		}
	case <-time.After(waitTimeout):
		t.Fatal("peer was not greeted")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected nil after peer close, got %v", err)
		}
	case <-time.After(waitTimeout * 2):
		t.Fatal("app did not stop")
	}
}

func TestInitiatorDialFailure(t *testing.T) {
	cfg, err := settings.NewBuilder().Address(freeAddr(t)).Build()
	if err != nil {
		t.Fatalf("failed to build settings: %v", err)
	}

	err = Run(context.Background(), Options{
		Role:     model.RoleInitiator,
		Settings: cfg,
		Logger:   logger.Discard(),
	})
	if !errors.Is(err, model.ErrConnect) {
		t.Errorf("expected ErrConnect, got %v", err)
	}
}

func TestUnknownRole(t *testing.T) {
	cfg, err := settings.NewBuilder().Address("127.0.0.1:0").Build()
	if err != nil {
		t.Fatalf("failed to build settings: %v", err)
	}
	if err := Run(context.Background(), Options{Role: "observer", Settings: cfg, Logger: logger.Discard()}); err == nil {
		t.Error("expected an error for an unknown role")
	}
}
