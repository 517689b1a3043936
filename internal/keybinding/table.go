// Package keybinding maps terminal keys to outbound message factories.
//
// A Table is assembled once, before any session starts, and is then shared
// read-only by the terminal listener. Registration mistakes are returned as
// errors at assembly time rather than discovered while connections are live.
package keybinding

import (
	"fmt"
	"sort"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// Factory produces the message sent when its key is pressed.
type Factory func() message.Message

// Reserved keys present in every default table.
var (
	PingKey  = key.Char('p')
	CloseKey = key.Char('x')

	// QuitKey stops the terminal listener. It is never bindable.
	QuitKey = key.Ctrl('c')
)

// BindingError reports a rejected registration.
type BindingError struct {
	Key key.Key
	Err error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("keybinding %s: %v", e.Key, e.Err)
}

func (e *BindingError) Unwrap() error {
	return e.Err
}

// Table holds key bindings. The zero value is not usable; use NewTable or NewEmptyTable.
type Table struct {
	bindings map[key.Key]Factory
	reserved map[key.Key]struct{}
}

// NewTable returns a table holding the reserved ping and close bindings.
func NewTable() *Table {
	t := NewEmptyTable()
	t.reserve(PingKey, message.DefaultPing)
	t.reserve(CloseKey, message.NormalClose)
	return t
}

// NewEmptyTable returns a table with no bindings. Only the quit key is reserved.
func NewEmptyTable() *Table {
	t := &Table{
		bindings: make(map[key.Key]Factory),
		reserved: make(map[key.Key]struct{}),
	}
	t.reserved[QuitKey] = struct{}{}
	return t
}

func (t *Table) reserve(k key.Key, f Factory) {
	t.bindings[k] = f
	t.reserved[k] = struct{}{}
}

// Add binds k to f. It fails without modifying the table when k is reserved,
// already bound, or f is nil.
func (t *Table) Add(k key.Key, f Factory) error {
	if f == nil {
		return &BindingError{Key: k, Err: model.ErrNilFactory}
	}
	if _, ok := t.reserved[k]; ok {
		return &BindingError{Key: k, Err: model.ErrReservedKey}
	}
	if _, ok := t.bindings[k]; ok {
		return &BindingError{Key: k, Err: model.ErrDuplicateKey}
	}
	t.bindings[k] = f
	return nil
}

// Lookup returns the factory bound to k. An unbound key is not an error.
func (t *Table) Lookup(k key.Key) (Factory, bool) {
	f, ok := t.bindings[k]
	return f, ok
}

// IsReserved reports whether k can never be rebound.
func (t *Table) IsReserved(k key.Key) bool {
	_, ok := t.reserved[k]
	return ok
}

// Len returns the number of bound keys, reserved bindings included.
func (t *Table) Len() int {
	return len(t.bindings)
}

// Keys returns the bound keys in a stable order.
func (t *Table) Keys() []key.Key {
	keys := make([]key.Key, 0, len(t.bindings))
	for k := range t.bindings {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
	return keys
}

// Clone returns a copy that shares no maps with t.
func (t *Table) Clone() *Table {
	c := &Table{
		bindings: make(map[key.Key]Factory, len(t.bindings)),
		reserved: make(map[key.Key]struct{}, len(t.reserved)),
	}
	for k, f := range t.bindings {
		c.bindings[k] = f
	}
	for k := range t.reserved {
		c.reserved[k] = struct{}{}
	}
	return c
}
