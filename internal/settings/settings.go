// Package settings holds the immutable per-process configuration shared by
// every session, and the Builder that assembles it.
package settings

import (
	"fmt"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/keybinding"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// Defaults for the channel capacities.
const (
	DefaultBroadcastCapacity = 16
	DefaultReplyCapacity     = 4
)

// Settings is read-only after Build and safe to share between goroutines.
type Settings struct {
	address           string
	onConnect         *message.Message
	autoPong          bool
	logIncoming       bool
	logOutgoing       bool
	bindings          *keybinding.Table
	broadcastCapacity int
	replyCapacity     int
}

// Address returns the listen address (acceptor) or target URL (initiator).
func (s *Settings) Address() string { return s.address }

// OnConnectMessage returns the greeting sent when a connection opens.
func (s *Settings) OnConnectMessage() (message.Message, bool) {
	if s.onConnect == nil {
		return message.Message{}, false
	}
	return s.onConnect.Clone(), true
}

// AutoPong reports whether inbound pings are answered.
func (s *Settings) AutoPong() bool { return s.autoPong }

// LogIncomingMessages reports whether inbound text and pong frames are logged.
func (s *Settings) LogIncomingMessages() bool { return s.logIncoming }

// LogOutgoingMessages reports whether sent frames are logged.
func (s *Settings) LogOutgoingMessages() bool { return s.logOutgoing }

// Keybindings returns the key table. Callers must not modify it.
func (s *Settings) Keybindings() *keybinding.Table { return s.bindings }

// BroadcastCapacity returns the per-session broadcast queue length.
func (s *Settings) BroadcastCapacity() int { return s.broadcastCapacity }

// ReplyCapacity returns the per-session reply channel length.
func (s *Settings) ReplyCapacity() int { return s.replyCapacity }

// WithAddress returns a copy of s targeting addr.
func (s *Settings) WithAddress(addr string) *Settings {
	c := *s
	c.address = addr
	return &c
}

// Builder assembles Settings. The first error is kept and returned by Build;
// later calls are ignored once an error has been recorded.
type Builder struct {
	s   Settings
	err error
}

// NewBuilder returns a builder seeded with the default keybinding table.
func NewBuilder() *Builder {
	return &Builder{
		s: Settings{
			logOutgoing:       true,
			bindings:          keybinding.NewTable(),
			broadcastCapacity: DefaultBroadcastCapacity,
			replyCapacity:     DefaultReplyCapacity,
		},
	}
}

// Address sets the listen address or target URL.
func (b *Builder) Address(addr string) *Builder {
	if b.err == nil {
		b.s.address = addr
	}
	return b
}

// OnConnectMessage sets the greeting. A message that fails Validate becomes
// the builder's error.
func (b *Builder) OnConnectMessage(msg message.Message) *Builder {
	if b.err != nil {
		return b
	}
	if err := msg.Validate(); err != nil {
		b.err = fmt.Errorf("on-connect message: %w", err)
		return b
	}
	m := msg.Clone()
	b.s.onConnect = &m
	return b
}

// ClearOnConnectMessage removes the greeting.
func (b *Builder) ClearOnConnectMessage() *Builder {
	if b.err == nil {
		b.s.onConnect = nil
	}
	return b
}

// AutoPong enables or disables answering pings.
func (b *Builder) AutoPong(on bool) *Builder {
	if b.err == nil {
		b.s.autoPong = on
	}
	return b
}

// LogIncomingMessages enables or disables logging of inbound frames.
func (b *Builder) LogIncomingMessages(on bool) *Builder {
	if b.err == nil {
		b.s.logIncoming = on
	}
	return b
}

// LogOutgoingMessages enables or disables logging of sent frames.
func (b *Builder) LogOutgoingMessages(on bool) *Builder {
	if b.err == nil {
		b.s.logOutgoing = on
	}
	return b
}

// Bind adds a keybinding. A rejected binding becomes the builder's error.
func (b *Builder) Bind(k key.Key, f keybinding.Factory) *Builder {
	if b.err == nil {
		b.err = b.s.bindings.Add(k, f)
	}
	return b
}

// BindMessage binds k to a fixed message. A message that fails Validate is
// rejected with a *keybinding.BindingError.
func (b *Builder) BindMessage(k key.Key, msg message.Message) *Builder {
	if b.err != nil {
		return b
	}
	if err := msg.Validate(); err != nil {
		b.err = &keybinding.BindingError{Key: k, Err: err}
		return b
	}
	m := msg.Clone()
	return b.Bind(k, func() message.Message { return m.Clone() })
}

// Keybindings replaces the whole table.
func (b *Builder) Keybindings(t *keybinding.Table) *Builder {
	if b.err == nil && t != nil {
		b.s.bindings = t.Clone()
	}
	return b
}

// BroadcastCapacity sets the per-session broadcast queue length. Non-positive values keep the default.
func (b *Builder) BroadcastCapacity(n int) *Builder {
	if b.err == nil && n > 0 {
		b.s.broadcastCapacity = n
	}
	return b
}

// ReplyCapacity sets the per-session reply channel length. Non-positive values keep the default.
func (b *Builder) ReplyCapacity(n int) *Builder {
	if b.err == nil && n > 0 {
		b.s.replyCapacity = n
	}
	return b
}

// Err returns the first recorded error.
func (b *Builder) Err() error {
	return b.err
}

// Build returns the settings or the first error. The keybinding table is
// copied, so later use of the builder does not affect the result.
func (b *Builder) Build() (*Settings, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.s.address == "" {
		return nil, model.ErrAddressRequired
	}
	s := b.s
	s.bindings = b.s.bindings.Clone()
	if b.s.onConnect != nil {
		m := b.s.onConnect.Clone()
		s.onConnect = &m
	}
	return &s, nil
}
