// Package message defines the frames exchanged over a Wasabi connection.
//
// A Message is one of five variants: Text, Binary, Ping, Pong or Close. Payloads
// are copied when a Message is built and again when they are read back, so a
// Message can be handed to any number of sessions without synchronization.
package message

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/stfn-ko/Wasabi/internal/model"
)

// Kind identifies the variant of a Message.
type Kind int

const (
	KindText Kind = iota + 1
	KindBinary
	KindPing
	KindPong
	KindClose
)

// String returns the lower-case variant name.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return "close"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Close status codes used by this package.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseInvalidPayload  = 1007
	CloseNoStatus        = 1005
	CloseAbnormalClosure = 1006
)

// Control frame limits from RFC 6455 section 5.5.
const (
	MaxControlPayload = 125
	MaxCloseReason    = MaxControlPayload - 2
)

// Message is an immutable WebSocket message.
// The zero value is not a valid message; use the constructors.
type Message struct {
	kind Kind
	text string
	data []byte
	code int
}

// Text creates a text message.
func Text(s string) Message {
	return Message{kind: KindText, text: s}
}

// Binary creates a binary message. The payload is copied.
func Binary(b []byte) Message {
	return Message{kind: KindBinary, data: clone(b)}
}

// Ping creates a ping control message. The payload is copied.
func Ping(b []byte) Message {
	return Message{kind: KindPing, data: clone(b)}
}

// Pong creates a pong control message. The payload is copied.
func Pong(b []byte) Message {
	return Message{kind: KindPong, data: clone(b)}
}

// Close creates a close control message with a status code and reason.
func Close(code int, reason string) Message {
	return Message{kind: KindClose, code: code, text: reason}
}

// Kind returns the variant of the message.
func (m Message) Kind() Kind {
	return m.kind
}

// IsValid reports whether m was built by one of the constructors.
func (m Message) IsValid() bool {
	return m.kind >= KindText && m.kind <= KindClose
}

// Validate reports whether m can be put on the wire as built. Control payloads
// must fit in a single frame and a close code must be one a peer may send.
// Failures wrap model.ErrInvalidMessage.
func (m Message) Validate() error {
	switch m.kind {
	case KindText:
		if !utf8.ValidString(m.text) {
			return fmt.Errorf("%w: text is not valid UTF-8", model.ErrInvalidMessage)
		}
	case KindBinary:
	case KindPing, KindPong:
		if len(m.data) > MaxControlPayload {
			return fmt.Errorf("%w: %s payload is %d bytes, limit %d",
				model.ErrInvalidMessage, m.kind, len(m.data), MaxControlPayload)
		}
	case KindClose:
		if !ValidCloseCode(m.code) {
			return fmt.Errorf("%w: close code %d cannot be sent", model.ErrInvalidMessage, m.code)
		}
		if len(m.text) > MaxCloseReason {
			return fmt.Errorf("%w: close reason is %d bytes, limit %d",
				model.ErrInvalidMessage, len(m.text), MaxCloseReason)
		}
		if !utf8.ValidString(m.text) {
			return fmt.Errorf("%w: close reason is not valid UTF-8", model.ErrInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: %s", model.ErrInvalidMessage, m.kind)
	}
	return nil
}

// ValidCloseCode reports whether code may appear in a close frame. 1004 to 1006
// and 1015 are reserved for local use.
func ValidCloseCode(code int) bool {
	switch {
	case code >= 1000 && code <= 1003:
		return true
	case code >= 1007 && code <= 1014:
		return true
	case code >= 3000 && code <= 4999:
		return true
	}
	return false
}

func (m Message) IsText() bool   { return m.kind == KindText }
func (m Message) IsBinary() bool { return m.kind == KindBinary }
func (m Message) IsPing() bool   { return m.kind == KindPing }
func (m Message) IsPong() bool   { return m.kind == KindPong }
func (m Message) IsClose() bool  { return m.kind == KindClose }

// IsControl reports whether m is a ping, pong or close frame.
func (m Message) IsControl() bool {
	return m.kind == KindPing || m.kind == KindPong || m.kind == KindClose
}

// Text returns the text of a Text message or the reason of a Close message.
func (m Message) Text() string {
	return m.text
}

// Data returns a copy of the payload of a Binary, Ping or Pong message.
// For Text messages it returns the UTF-8 bytes of the text.
func (m Message) Data() []byte {
	if m.kind == KindText {
		return []byte(m.text)
	}
	return clone(m.data)
}

// Len returns the payload length in bytes.
func (m Message) Len() int {
	if m.kind == KindText || m.kind == KindClose {
		return len(m.text)
	}
	return len(m.data)
}

// Code returns the status code of a Close message, or 0.
func (m Message) Code() int {
	return m.code
}

// Clone returns an independent copy of m.
func (m Message) Clone() Message {
	c := m
	c.data = clone(m.data)
	return c
}

// Equal reports whether m and other carry the same variant and payload.
func (m Message) Equal(other Message) bool {
	return m.kind == other.kind &&
		m.code == other.code &&
		m.text == other.text &&
		bytes.Equal(m.data, other.data)
}

// String returns a short human-readable form used in log lines.
func (m Message) String() string {
	switch m.kind {
	case KindText:
		return m.text
	case KindBinary:
		return fmt.Sprintf("binary(%d bytes)", len(m.data))
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	case KindClose:
		return fmt.Sprintf("close(%d %q)", m.code, m.text)
	default:
		return "invalid"
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
