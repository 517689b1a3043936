// Package terminal reads key presses from the local terminal and publishes the
// messages bound to them.
package terminal

import (
	"github.com/stfn-ko/Wasabi/internal/input/key"
)

// Source produces key presses. ReadKey blocks until a key is available and
// returns io.EOF once the source is exhausted or closed.
type Source interface {
	ReadKey() (key.Key, error)
	Close() error
}
