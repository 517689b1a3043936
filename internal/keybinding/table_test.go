package keybinding

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

func TestNewTableDefaults(t *testing.T) {
	table := NewTable()

	if table.Len() != 2 {
		t.Errorf("expected 2 default bindings, got %d", table.Len())
	}

	f, ok := table.Lookup(PingKey)
	if !ok {
		t.Fatal("expected ping key to be bound")
	}
	if !f().IsPing() {
		t.Errorf("expected ping factory, got %v", f())
	}

	f, ok = table.Lookup(CloseKey)
	if !ok {
		t.Fatal("expected close key to be bound")
	}
	if !f().IsClose() {
		t.Errorf("expected close factory, got %v", f())
	}

	if _, ok := table.Lookup(key.Char('z')); ok {
		t.Error("expected unbound key lookup to report false")
	}
}

func TestAddReservedKey(t *testing.T) {
	table := NewTable()
	before := table.Len()

	for _, k := range []key.Key{PingKey, CloseKey, QuitKey} {
		err := table.Add(k, func() message.Message { return message.Text("hijack") })
		if !errors.Is(err, model.ErrReservedKey) {
			t.Errorf("Add(%s) error = %v, want ErrReservedKey", k, err)
		}
		var bindErr *BindingError
		if !errors.As(err, &bindErr) || bindErr.Key != k {
			t.Errorf("Add(%s) error should carry the key, got %v", k, err)
		}
	}

	if table.Len() != before {
		t.Errorf("expected %d bindings after rejected adds, got %d", before, table.Len())
	}

	f, _ := table.Lookup(PingKey)
	if !f().IsPing() {
		t.Errorf("reserved ping binding was replaced: %v", f())
	}
}

func TestAddDuplicateKey(t *testing.T) {
	table := NewTable()
	k := key.Char('t')

	if err := table.Add(k, func() message.Message { return message.Text("first") }); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	err := table.Add(k, func() message.Message { return message.Text("second") })
	if !errors.Is(err, model.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	f, _ := table.Lookup(k)
	if f().Text() != "first" {
		t.Errorf("expected original binding to remain, got %q", f().Text())
	}
}

func TestAddNilFactory(t *testing.T) {
	table := NewTable()
	if err := table.Add(key.Char('t'), nil); !errors.Is(err, model.ErrNilFactory) {
		t.Errorf("expected ErrNilFactory, got %v", err)
	}
	if _, ok := table.Lookup(key.Char('t')); ok {
		t.Error("nil factory must not be bound")
	}
}

func TestEmptyTable(t *testing.T) {
	table := NewEmptyTable()
	if table.Len() != 0 {
		t.Errorf("expected empty table, got %d bindings", table.Len())
	}
	if err := table.Add(PingKey, message.DefaultPing); err != nil {
		t.Errorf("ping key should be bindable in an empty table: %v", err)
	}
	if !table.IsReserved(QuitKey) {
		t.Error("quit key must stay reserved")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	table := NewTable()
	clone := table.Clone()

	if err := table.Add(key.Char('t'), message.DefaultPong); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, ok := clone.Lookup(key.Char('t')); ok {
		t.Error("clone should not see bindings added after cloning")
	}
	if !clone.IsReserved(PingKey) {
		t.Error("clone should keep reserved keys")
	}
}

func TestKeysSorted(t *testing.T) {
	table := NewTable()
	table.Add(key.Char('a'), message.DefaultPong)
	table.Add(key.Char('m'), message.DefaultPong)

	keys := table.Keys()
	if len(keys) != 4 {
		t.Fatalf("expected 4 keys, got %d", len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1].String() > keys[i].String() {
			t.Errorf("keys not sorted: %v", keys)
		}
	}
}

// Rejected registrations never change the table.
func TestRejectedAddLeavesTableUnchangedProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("adding each rune twice binds it once", prop.ForAll(
		func(runes []rune) bool {
			table := NewTable()
			for _, r := range runes {
				k := key.Char(r)
				text := string(r)
				err := table.Add(k, func() message.Message { return message.Text(text) })
				reserved := k == PingKey || k == CloseKey
				_, bound := table.Lookup(k)
				switch {
				case reserved && !errors.Is(err, model.ErrReservedKey):
					return false
				case !reserved && err != nil && !errors.Is(err, model.ErrDuplicateKey):
					return false
				case !bound:
					return false
				}
			}
			for _, r := range runes {
				k := key.Char(r)
				if k == PingKey || k == CloseKey {
					continue
				}
				f, ok := table.Lookup(k)
				if !ok || f().Text() != string(r) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaChar()),
	))

	properties.TestingRun(t)
}
