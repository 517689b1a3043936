package terminal

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/keybinding"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// scriptedSource replays keys, then reports end.
type scriptedSource struct {
	keys []key.Key
	end  error
}

func (s *scriptedSource) ReadKey() (key.Key, error) {
	if len(s.keys) == 0 {
		if s.end != nil {
			return key.Key{}, s.end
		}
		return key.Key{}, io.EOF
	}
	k := s.keys[0]
	s.keys = s.keys[1:]
	return k, nil
}

func (s *scriptedSource) Close() error { return nil }

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []message.Message
}

func (p *recordingPublisher) Publish(msg message.Message) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return 1
}

func (p *recordingPublisher) published() []message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Message(nil), p.msgs...)
}

func testTable(t *testing.T) *keybinding.Table {
	t.Helper()
	table := keybinding.NewTable()
	if err := table.Add(key.Char('t'), func() message.Message { return message.Text("server test message") }); err != nil {
		t.Fatalf("failed to bind: %v", err)
	}
	return table
}

func TestListenerPublishesBoundKeys(t *testing.T) {
	pub := &recordingPublisher{}
	m := metrics.New(nil, 0)
	var logs bytes.Buffer

	l := &Listener{
		Source:    &scriptedSource{keys: []key.Key{key.Char('t'), key.Char('z'), key.Char('p'), key.Char('x')}},
		Bindings:  testTable(t),
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
		Metrics:   m,
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	got := pub.published()
	want := []message.Message{
		message.Text("server test message"),
		message.DefaultPing(),
		message.NormalClose(),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d messages, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Errorf("message %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if n := m.Count(metrics.KeysPublished); n != 3 {
		t.Errorf("expected 3 published keys, got %d", n)
	}
	if !strings.Contains(logs.String(), "KEY :: t") {
		t.Errorf("expected key log line, got %q", logs.String())
	}
}

func TestListenerStopsOnQuitKey(t *testing.T) {
	pub := &recordingPublisher{}
	var seen []key.Key
	l := &Listener{
		Source:    &scriptedSource{keys: []key.Key{key.Char('z'), key.Ctrl('c'), key.Char('t')}},
		Bindings:  testTable(t),
		Publisher: pub,
		OnKey:     func(k key.Key, bound bool) { seen = append(seen, k) },
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if n := len(pub.published()); n != 0 {
		t.Errorf("keys after quit should not publish, got %d", n)
	}
	if len(seen) != 2 || seen[1] != key.Ctrl('c') {
		t.Errorf("expected OnKey to see z and C-c, got %v", seen)
	}
}

func TestListenerCustomQuitKey(t *testing.T) {
	pub := &recordingPublisher{}
	l := &Listener{
		Source:    &scriptedSource{keys: []key.Key{key.Char('q'), key.Char('t')}},
		Bindings:  testTable(t),
		Publisher: pub,
		QuitKey:   key.Char('q'),
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if n := len(pub.published()); n != 0 {
		t.Errorf("expected nothing published, got %d", n)
	}
}

func TestListenerReturnsSourceError(t *testing.T) {
	boom := errors.New("tty gone")
	l := &Listener{
		Source:    &scriptedSource{end: boom},
		Bindings:  testTable(t),
		Publisher: &recordingPublisher{},
	}
	if err := l.Run(); !errors.Is(err, boom) {
		t.Errorf("expected source error, got %v", err)
	}
}

func TestListenerFactoryCalledPerPress(t *testing.T) {
	calls := 0
	table := keybinding.NewEmptyTable()
	if err := table.Add(key.F(5), func() message.Message {
		calls++
		return message.Binary([]byte{byte(calls)})
	}); err != nil {
		t.Fatalf("failed to bind: %v", err)
	}

	pub := &recordingPublisher{}
	l := &Listener{
		Source:    &scriptedSource{keys: []key.Key{key.F(5), key.F(5)}},
		Bindings:  table,
		Publisher: pub,
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	got := pub.published()
	if calls != 2 || len(got) != 2 || got[1].Data()[0] != 2 {
		t.Errorf("expected a fresh message per press, got %v after %d calls", got, calls)
	}
}

func TestListenerDropsInvalidMessage(t *testing.T) {
	table := keybinding.NewEmptyTable()
	if err := table.Add(key.F(6), func() message.Message {
		return message.Ping(make([]byte, message.MaxControlPayload+1))
	}); err != nil {
		t.Fatalf("failed to bind: %v", err)
	}
	if err := table.Add(key.F(7), func() message.Message { return message.Text("ok") }); err != nil {
		t.Fatalf("failed to bind: %v", err)
	}

	var logs bytes.Buffer
	pub := &recordingPublisher{}
	l := &Listener{
		Source:    &scriptedSource{keys: []key.Key{key.F(6), key.F(7)}},
		Bindings:  table,
		Publisher: pub,
		Logger:    slog.New(slog.NewTextHandler(&logs, nil)),
	}
	if err := l.Run(); err != nil {
		t.Fatalf("Run returned %v", err)
	}

	got := pub.published()
	if len(got) != 1 || !got[0].Equal(message.Text("ok")) {
		t.Errorf("expected only the valid message, got %v", got)
	}
	if !strings.Contains(logs.String(), "dropped") {
		t.Errorf("expected a dropped warning, got %q", logs.String())
	}
}

func TestListenerStart(t *testing.T) {
	l := &Listener{
		Source:    &scriptedSource{},
		Bindings:  testTable(t),
		Publisher: &recordingPublisher{},
	}

	select {
	case err := <-l.Start():
		if err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
