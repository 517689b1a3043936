package session

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// mockConn is an in-memory ws.Conn. Tests feed inbound frames through in or
// readErr and observe outbound frames on written.
type mockConn struct {
	in      chan message.Message
	readErr chan error
	written chan message.Message
	closed  chan struct{}
	once    sync.Once

	// hold, when set, keeps ReadMessage blocked until it is closed, even after Close.
	hold chan struct{}

	writing          atomic.Int32
	overlap          atomic.Bool
	failWrites       atomic.Bool
	writesAfterClose atomic.Int32
	writeDelay       time.Duration

	// session, when set, lets WriteMessage count frames sent once it is Closing.
	session            atomic.Pointer[Session]
	writesWhileClosing atomic.Int32
}

func newMockConn() *mockConn {
	return &mockConn{
		in:      make(chan message.Message, 1024),
		readErr: make(chan error, 1),
		written: make(chan message.Message, 4096),
		closed:  make(chan struct{}),
	}
}

func (c *mockConn) ReadMessage() (message.Message, error) {
	if c.hold != nil {
		<-c.hold
		return message.Message{}, model.ErrChannelClosed
	}
	select {
	case msg, ok := <-c.in:
		if !ok {
			return message.Message{}, io.EOF
		}
		return msg, nil
	case err := <-c.readErr:
		return message.Message{}, err
	case <-c.closed:
		return message.Message{}, model.ErrChannelClosed
	}
}

func (c *mockConn) WriteMessage(msg message.Message) error {
	if c.writing.Add(1) > 1 {
		c.overlap.Store(true)
	}
	defer c.writing.Add(-1)

	if s := c.session.Load(); s != nil && s.State() >= model.StateClosing {
		c.writesWhileClosing.Add(1)
	}

	select {
	case <-c.closed:
		c.writesAfterClose.Add(1)
		return fmt.Errorf("%w: connection closed", model.ErrSend)
	default:
	}
	if c.failWrites.Load() {
		return fmt.Errorf("%w: broken pipe", model.ErrSend)
	}
	if c.writeDelay > 0 {
		time.Sleep(c.writeDelay)
	}
	c.written <- msg
	return nil
}

func (c *mockConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *mockConn) RemoteAddr() string {
	return "127.0.0.1:40000"
}

// drainWritten returns everything written so far.
func (c *mockConn) drainWritten() []message.Message {
	var out []message.Message
	for {
		select {
		case msg := <-c.written:
			out = append(out, msg)
		default:
			return out
		}
	}
}
