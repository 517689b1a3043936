package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("dial ws://x: %w", ErrConnect), "connect"},
		{fmt.Errorf("upgrade: %w", ErrHandshake), "handshake"},
		{fmt.Errorf("read: %w", ErrFrameDecode), "frame_decode"},
		{fmt.Errorf("write: %w", ErrSend), "send"},
		{fmt.Errorf("read: %w", ErrRead), "read"},
		{fmt.Errorf("ping: %w", ErrInvalidMessage), "invalid_message"},
		{ErrReservedKey, "reserved_key"},
		{ErrDuplicateKey, "duplicate_key"},
		{ErrChannelClosed, "channel_closed"},
		{errors.New("other"), "unknown"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		StateHandshaking: "handshaking",
		StateOpen:        "open",
		StateClosing:     "closing",
		StateClosed:      "closed",
		State(42):        "unknown",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("expected %q, got %q", want, s.String())
		}
	}
}
