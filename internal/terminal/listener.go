package terminal

import (
	"errors"
	"io"
	"log/slog"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/keybinding"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// Publisher fans a message out to every live session.
type Publisher interface {
	Publish(msg message.Message) int
}

// Listener turns key presses into published messages.
type Listener struct {
	Source    Source
	Bindings  *keybinding.Table
	Publisher Publisher
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// QuitKey ends Run. The zero key means keybinding.QuitKey.
	QuitKey key.Key

	// OnKey, if set, sees every key before it is handled.
	OnKey func(k key.Key, bound bool)
}

// Run reads keys until the quit key is pressed or the source ends.
// Bound keys publish their message; unbound keys are ignored.
// It returns nil on quit or io.EOF.
func (l *Listener) Run() error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	quit := l.QuitKey
	if quit.IsZero() {
		quit = keybinding.QuitKey
	}

	for {
		k, err := l.Source.ReadKey()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		factory, ok := l.Bindings.Lookup(k)
		if l.OnKey != nil {
			l.OnKey(k, ok)
		}

		if k == quit {
			logger.Info("KEY :: " + k.String() + " (quit)")
			return nil
		}
		if !ok {
			logger.Debug("KEY :: " + k.String() + " (unbound)")
			continue
		}

		msg := factory()
		if err := msg.Validate(); err != nil {
			logger.Warn("KEY :: "+k.String()+" (dropped)", "error", err)
			continue
		}
		n := l.Publisher.Publish(msg)
		l.Metrics.Incr(metrics.KeysPublished, 1)
		logger.Info("KEY :: "+k.String(), "message", msg.String(), "receivers", n)
	}
}

// Start runs the listener in a goroutine. The returned channel receives Run's
// result and is then closed.
func (l *Listener) Start() <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- l.Run()
	}()
	return done
}
