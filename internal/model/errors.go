package model

import "errors"

var (
	// ErrConnect is returned when the transport endpoint cannot be reached or bound.
	ErrConnect = errors.New("connect failed")

	// ErrHandshake is returned when the WebSocket upgrade fails.
	ErrHandshake = errors.New("handshake failed")

	// ErrFrameDecode is returned when an inbound frame cannot be decoded.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrRead is returned when the transport fails while reading an open connection.
	ErrRead = errors.New("read failed")

	// ErrSend is returned when an outbound frame cannot be written.
	ErrSend = errors.New("send failed")

	// ErrInvalidMessage is returned when a message cannot be sent as a single
	// frame, such as an oversized control payload or a reserved close code.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrReservedKey is returned when a reserved key is rebound.
	ErrReservedKey = errors.New("key is reserved")

	// ErrDuplicateKey is returned when a key that is already bound is bound again.
	ErrDuplicateKey = errors.New("key is already bound")

	// ErrNilFactory is returned when a keybinding is registered without a factory.
	ErrNilFactory = errors.New("keybinding factory is nil")

	// ErrChannelClosed is returned when the producer side of an internal channel is gone.
	ErrChannelClosed = errors.New("channel closed")

	// ErrAddressRequired is returned when settings are built without an address.
	ErrAddressRequired = errors.New("address is required")

	// ErrInvalidAddress is returned when the address cannot be parsed for the role.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSessionNotFound is returned when a journal entry does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorKind names the sentinel an error wraps, for log lines and journal rows.
// It returns "" for nil and "unknown" for errors outside this package.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrHandshake):
		return "handshake"
	case errors.Is(err, ErrFrameDecode):
		return "frame_decode"
	case errors.Is(err, ErrRead):
		return "read"
	case errors.Is(err, ErrSend):
		return "send"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrReservedKey):
		return "reserved_key"
	case errors.Is(err, ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, ErrChannelClosed):
		return "channel_closed"
	default:
		return "unknown"
	}
}
