package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1 << 20
)

// Conn is a message-level WebSocket connection.
//
// ReadMessage must only be called from one goroutine and WriteMessage from one
// goroutine. Close may be called from any goroutine and unblocks a pending read.
type Conn interface {
	ReadMessage() (message.Message, error)
	WriteMessage(msg message.Message) error
	Close() error
	RemoteAddr() string
}

type frame struct {
	msg message.Message
	err error
}

// conn wraps a gorilla connection. A pump goroutine owns the gorilla reader and
// forwards data frames and control frames in arrival order.
type conn struct {
	ws      *websocket.Conn
	frames  chan frame
	closing chan struct{}
	once    sync.Once
}

// NewConn wraps ws and starts reading from it.
func NewConn(ws *websocket.Conn) Conn {
	c := &conn{
		ws:      ws,
		frames:  make(chan frame),
		closing: make(chan struct{}),
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetPingHandler(func(appData string) error {
		c.deliver(frame{msg: message.Ping([]byte(appData))})
		return nil
	})
	ws.SetPongHandler(func(appData string) error {
		c.deliver(frame{msg: message.Pong([]byte(appData))})
		return nil
	})
	ws.SetCloseHandler(func(code int, text string) error {
		c.deliver(frame{msg: message.Close(code, text)})
		return nil
	})

	go c.readPump()
	return c
}

func (c *conn) deliver(f frame) bool {
	select {
	case c.frames <- f:
		return true
	case <-c.closing:
		return false
	}
}

// readPump pumps frames from the gorilla connection to ReadMessage.
func (c *conn) readPump() {
	defer close(c.frames)

	for {
		mt, payload, err := c.ws.ReadMessage()
		if err != nil {
			c.deliver(frame{err: readError(err)})
			return
		}

		msg, err := Decode(mt, payload)
		if !c.deliver(frame{msg: msg, err: err}) {
			return
		}
	}
}

// readError classifies a gorilla read failure. Protocol violations surface as
// plain errors from gorilla and become model.ErrFrameDecode.
func readError(err error) error {
	var (
		closeErr *websocket.CloseError
		netErr   net.Error
	)
	switch {
	case errors.As(err, &closeErr):
		// The close frame was already delivered by the close handler.
		return io.EOF
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return io.EOF
	case errors.Is(err, net.ErrClosed), errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", model.ErrRead, err)
	default:
		return fmt.Errorf("%w: %w", model.ErrFrameDecode, err)
	}
}

// ReadMessage returns the next inbound message, control frames included.
// It returns io.EOF after the peer closed and model.ErrChannelClosed after Close.
func (c *conn) ReadMessage() (message.Message, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return message.Message{}, io.EOF
		}
		return f.msg, f.err
	case <-c.closing:
		return message.Message{}, model.ErrChannelClosed
	}
}

// WriteMessage sends msg as a single frame.
func (c *conn) WriteMessage(msg message.Message) error {
	ft, payload, err := Encode(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if msg.IsControl() {
		err = c.ws.WriteControl(ft, payload, deadline)
	} else {
		c.ws.SetWriteDeadline(deadline)
		err = c.ws.WriteMessage(ft, payload)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrSend, err)
	}
	return nil
}

// Close closes the underlying connection without a close handshake.
func (c *conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closing)
		err = c.ws.Close()
	})
	return err
}

// RemoteAddr returns the peer's network address.
func (c *conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
