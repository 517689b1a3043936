package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/stfn-ko/Wasabi/internal/input/key"
)

// TcellSource reads keys from a tcell screen.
type TcellSource struct {
	screen tcell.Screen
	once   sync.Once
}

// NewTcellSource initializes a tcell screen on the controlling terminal.
func NewTcellSource() (*TcellSource, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to create screen: %w", err)
	}
	return newTcellSource(screen)
}

func newTcellSource(screen tcell.Screen) (*TcellSource, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize screen: %w", err)
	}
	return &TcellSource{screen: screen}, nil
}

// ReadKey waits for the next key event. Other events are skipped.
func (s *TcellSource) ReadKey() (key.Key, error) {
	for {
		ev := s.screen.PollEvent()
		if ev == nil {
			return key.Key{}, io.EOF
		}
		if e, ok := ev.(*tcell.EventKey); ok {
			if k, ok := convertKey(e); ok {
				return k, nil
			}
		}
	}
}

// Close restores the terminal. A pending ReadKey returns io.EOF.
func (s *TcellSource) Close() error {
	s.once.Do(s.screen.Fini)
	return nil
}

var specialKeys = map[tcell.Key]key.Code{
	tcell.KeyEnter:      key.CodeEnter,
	tcell.KeyEscape:     key.CodeEscape,
	tcell.KeyTab:        key.CodeTab,
	tcell.KeyBackspace:  key.CodeBackspace,
	tcell.KeyBackspace2: key.CodeBackspace,
	tcell.KeyDelete:     key.CodeDelete,
	tcell.KeyInsert:     key.CodeInsert,
	tcell.KeyHome:       key.CodeHome,
	tcell.KeyEnd:        key.CodeEnd,
	tcell.KeyPgUp:       key.CodePageUp,
	tcell.KeyPgDn:       key.CodePageDown,
	tcell.KeyUp:         key.CodeUp,
	tcell.KeyDown:       key.CodeDown,
	tcell.KeyLeft:       key.CodeLeft,
	tcell.KeyRight:      key.CodeRight,
	tcell.KeyF1:         key.CodeF1,
	tcell.KeyF2:         key.CodeF2,
	tcell.KeyF3:         key.CodeF3,
	tcell.KeyF4:         key.CodeF4,
	tcell.KeyF5:         key.CodeF5,
	tcell.KeyF6:         key.CodeF6,
	tcell.KeyF7:         key.CodeF7,
	tcell.KeyF8:         key.CodeF8,
	tcell.KeyF9:         key.CodeF9,
	tcell.KeyF10:        key.CodeF10,
	tcell.KeyF11:        key.CodeF11,
	tcell.KeyF12:        key.CodeF12,
}

// convertKey maps a tcell key event to a Key. Tab, Enter and Backspace share
// values with Ctrl-I, Ctrl-M and Ctrl-H and are reported as the named keys.
func convertKey(e *tcell.EventKey) (key.Key, bool) {
	mods := e.Modifiers()

	if e.Key() == tcell.KeyRune {
		r := e.Rune()
		switch {
		case mods&tcell.ModCtrl != 0:
			return key.Ctrl(r), true
		case mods&tcell.ModAlt != 0:
			return key.Alt(r), true
		default:
			return key.Char(r), true
		}
	}

	if code, ok := specialKeys[e.Key()]; ok {
		k := key.Special(code)
		if mods&tcell.ModAlt != 0 {
			k.Mod |= key.ModAlt
		}
		return k, true
	}

	if e.Key() >= tcell.KeyCtrlA && e.Key() <= tcell.KeyCtrlZ {
		return key.Ctrl('a' + rune(e.Key()-tcell.KeyCtrlA)), true
	}
	return key.Key{}, false
}
