// Package session runs one WebSocket connection: a read task, a write task,
// and the state machine that ties their lifetimes together.
//
// The read task decodes inbound frames, logs them and pushes automatic replies
// onto a private channel. The write task is the only code that writes to the
// connection; it merges the reply channel with the session's broadcast
// subscription. When either task stops, the other is stopped too, and the
// session reports Closed only after both have returned.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stfn-ko/Wasabi/internal/broadcast"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/responder"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/ws"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

const (
	// How long the write task waits for the peer to answer our close frame.
	closeGrace = time.Second

	journalTimeout = 5 * time.Second
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("session already started")

// Journal records session lifecycles. *repository.SessionRepository implements it.
type Journal interface {
	Create(ctx context.Context, rec *model.SessionRecord) error
	MarkClosed(ctx context.Context, rec *model.SessionRecord) error
}

// Config holds what a session needs from its creator.
type Config struct {
	Role         model.Role
	Peer         string
	Settings     *settings.Settings
	Conn         ws.Conn
	Subscription *broadcast.Subscription
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Journal      Journal
}

// Session owns one connection.
type Session struct {
	id       string
	role     model.Role
	peer     string
	settings *settings.Settings
	conn     ws.Conn
	sub      *broadcast.Subscription
	replies  chan message.Message
	logger   *slog.Logger
	metrics  *metrics.Metrics
	journal  Journal

	state     atomic.Int32
	started   atomic.Bool
	closeSent atomic.Bool
	framesIn  atomic.Int64
	framesOut atomic.Int64
	done      chan struct{}

	// peerClose is set by the read task when the peer sends a close frame.
	peerClose atomic.Pointer[message.Message]

	// sendMu orders the read task's exit against sends so nothing is written
	// once the session is Closing.
	sendMu sync.Mutex

	mu       sync.Mutex
	cause    error
	reason   string
	openedAt time.Time
}

// New creates a session in the Handshaking state. Call Run to start it.
func New(cfg Config) *Session {
	id := uuid.New().String()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		id:       id,
		role:     cfg.Role,
		peer:     cfg.Peer,
		settings: cfg.Settings,
		conn:     cfg.Conn,
		sub:      cfg.Subscription,
		replies:  make(chan message.Message, cfg.Settings.ReplyCapacity()),
		logger:   logger.With("session", id, "role", string(cfg.Role), "peer", cfg.Peer),
		metrics:  cfg.Metrics,
		journal:  cfg.Journal,
		done:     make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Role returns which side of the connection this session plays.
func (s *Session) Role() model.Role { return s.role }

// Peer returns the remote identity.
func (s *Session) Peer() string { return s.peer }

// State returns the current lifecycle state.
func (s *Session) State() model.State {
	return model.State(s.state.Load())
}

// Done is closed once the session reaches Closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the session, or nil for a normal close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Record returns a snapshot of the session for the journal.
func (s *Session) Record() *model.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &model.SessionRecord{
		ID:          s.id,
		Role:        s.role,
		Peer:        s.peer,
		State:       s.State(),
		CloseReason: s.reason,
		ErrorKind:   model.ErrorKind(s.cause),
		FramesIn:    s.framesIn.Load(),
		FramesOut:   s.framesOut.Load(),
		OpenedAt:    s.openedAt,
	}
}

// advance moves the state forward to st. It never moves backwards.
func (s *Session) advance(st model.State) {
	for {
		cur := s.state.Load()
		if cur >= int32(st) {
			return
		}
		if s.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// fail records err as the cause unless one is already set, and starts closing.
func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.cause == nil {
		s.cause = err
	}
	s.mu.Unlock()
	s.advance(model.StateClosing)
}

// closing records why the session is ending, first reason wins.
func (s *Session) closing(reason string) {
	s.mu.Lock()
	if s.reason == "" {
		s.reason = reason
	}
	s.mu.Unlock()
	s.advance(model.StateClosing)
}

// Run opens the session, sends the greeting, and blocks until both tasks have
// exited. It returns the error that ended the session, or nil for a normal close.
// Cancelling ctx tears the session down.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	s.mu.Lock()
	s.openedAt = time.Now()
	s.mu.Unlock()
	s.advance(model.StateOpen)

	s.metrics.Incr(metrics.SessionsOpen, 1)
	s.metrics.Incr(metrics.SessionsTotal, 1)
	defer s.metrics.Decr(metrics.SessionsOpen, 1)

	s.journalOpen()
	s.logger.Info("connection open")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if greeting, ok := s.settings.OnConnectMessage(); ok {
		if err := s.send(greeting); err != nil {
			s.fail(err)
			s.finish(&wg)
			return s.Err()
		}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx, cancel)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop(ctx)
	}()

	<-ctx.Done()
	s.closing("local shutdown")
	s.finish(&wg)
	return s.Err()
}

// finish closes the connection, waits for both tasks and marks the session Closed.
func (s *Session) finish(wg *sync.WaitGroup) {
	// Closing the connection unblocks a read in progress.
	s.conn.Close()
	if s.sub != nil {
		s.sub.Close()
	}
	wg.Wait()

	s.advance(model.StateClosed)
	s.journalClose()

	if err := s.Err(); err != nil {
		s.logger.Warn("connection closed", "error", err, "kind", model.ErrorKind(err))
	} else {
		s.mu.Lock()
		reason := s.reason
		s.mu.Unlock()
		s.logger.Info("connection closed", "reason", reason)
	}
	close(s.done)
}

// readLoop pumps inbound frames until the connection ends. Any exit other
// than a peer close cancels the write task.
func (s *Session) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer close(s.replies)

	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			s.sendMu.Lock()
			switch {
			case ctx.Err() != nil, errors.Is(err, model.ErrChannelClosed):
				s.closing("local shutdown")
			case errors.Is(err, io.EOF):
				s.closing("peer disconnected")
			case errors.Is(err, model.ErrFrameDecode), errors.Is(err, model.ErrRead):
				s.logger.Warn("read failed", "error", err, "kind", model.ErrorKind(err))
				s.fail(err)
			default:
				s.logger.Warn("read failed", "error", err)
				s.fail(fmt.Errorf("%w: %w", model.ErrRead, err))
			}
			s.sendMu.Unlock()
			cancel()
			return
		}

		s.framesIn.Add(1)
		s.metrics.Incr(metrics.FramesRecv, 1)
		s.logIncoming(msg)

		if msg.IsClose() {
			s.sendMu.Lock()
			s.peerClose.Store(&msg)
			s.closing(fmt.Sprintf("peer closed (%d %s)", msg.Code(), msg.Text()))
			s.sendMu.Unlock()
			return
		}

		reply, ok := responder.Reply(msg, s.settings.AutoPong())
		if !ok {
			continue
		}
		select {
		case s.replies <- reply:
			s.metrics.Incr(metrics.RepliesEnqueued, 1)
		case <-ctx.Done():
			return
		}
	}
}

// writeLoop sends merged outbound traffic until the read task exits or a send fails.
func (s *Session) writeLoop(ctx context.Context) {
	m := newMerger(s.sub, s.replies)

	for {
		msg, _, err := m.Next(ctx)
		if errors.Is(err, errRepliesClosed) {
			s.echoClose()
			return
		}
		if err != nil {
			return
		}

		if s.sub != nil {
			if lagged := s.sub.TakeDropped(); lagged > 0 {
				s.logger.Warn("broadcast lagged", "dropped", lagged, "pending", s.sub.Pending())
			}
		}

		sent, err := s.sendOpen(msg)
		if err != nil {
			s.logger.Warn("send failed", "error", err)
			s.fail(err)
			return
		}
		if !sent {
			s.echoClose()
			return
		}

		if msg.IsClose() {
			s.closeSent.Store(true)
			s.closing("local close")
			s.awaitPeerClose(ctx)
			return
		}
	}
}

// sendOpen sends msg unless the session is already Closing, in which case it
// reports false and sends nothing.
func (s *Session) sendOpen(msg message.Message) (bool, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.State() >= model.StateClosing {
		return false, nil
	}
	return true, s.send(msg)
}

// echoClose answers a peer's close frame. It is the only send made while Closing.
func (s *Session) echoClose() {
	peerClose := s.peerClose.Load()
	if peerClose == nil || !s.closeSent.CompareAndSwap(false, true) {
		return
	}
	if err := s.send(*peerClose); err != nil {
		s.logger.Debug("close echo failed", "error", err)
	}
}

// awaitPeerClose gives the peer a moment to answer our close frame before the
// connection is torn down. Replies produced meanwhile are discarded.
func (s *Session) awaitPeerClose(ctx context.Context) {
	timer := time.NewTimer(closeGrace)
	defer timer.Stop()

	for {
		select {
		case _, ok := <-s.replies:
			if !ok {
				return
			}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// send writes one frame. It must only be called by the write task, or by Run
// before the write task starts.
func (s *Session) send(msg message.Message) error {
	if err := s.conn.WriteMessage(msg); err != nil {
		return err
	}
	s.framesOut.Add(1)
	s.metrics.Incr(metrics.FramesSent, 1)

	if s.settings.LogOutgoingMessages() {
		switch msg.Kind() {
		case message.KindText, message.KindPing, message.KindPong:
			s.logger.Info("OUT >> " + msg.String())
		}
	}
	return nil
}

func (s *Session) logIncoming(msg message.Message) {
	if !s.settings.LogIncomingMessages() {
		return
	}
	switch msg.Kind() {
	case message.KindText, message.KindPong:
		s.logger.Info("IN << " + msg.String())
	default:
		s.logger.Debug("IN << " + msg.String())
	}
}

func (s *Session) journalOpen() {
	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := s.journal.Create(ctx, s.Record()); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}

func (s *Session) journalClose() {
	if s.journal == nil {
		return
	}
	rec := s.Record()
	now := time.Now()
	rec.ClosedAt = &now

	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := s.journal.MarkClosed(ctx, rec); err != nil {
		s.logger.Warn("journal write failed", "error", err)
	}
}
