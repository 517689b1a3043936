package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/stfn-ko/Wasabi/internal/input/key"
)

// RawSource reads keys from a file, usually stdin, with the terminal in raw
// mode. It understands control bytes, UTF-8 and the common CSI and SS3
// sequences sent for arrows, navigation and F1-F4.
type RawSource struct {
	f     *os.File
	state *term.State
	dec   *decoder
}

// NewRawSource switches f into raw mode when it is a terminal.
// Close restores the previous mode.
func NewRawSource(f *os.File) (*RawSource, error) {
	s := &RawSource{f: f, dec: newDecoder(f)}
	if term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, fmt.Errorf("failed to enter raw mode: %w", err)
		}
		s.state = state
	}
	return s, nil
}

// ReadKey blocks until a full key has been read.
func (s *RawSource) ReadKey() (key.Key, error) {
	return s.dec.next()
}

// Close restores the terminal mode. It does not close f.
func (s *RawSource) Close() error {
	if s.state == nil {
		return nil
	}
	state := s.state
	s.state = nil
	return term.Restore(int(s.f.Fd()), state)
}

const esc = 0x1b

type decoder struct {
	r *bufio.Reader
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReader(r)}
}

// next decodes one key. A lone ESC is told apart from an escape sequence by
// whether more input arrived in the same read.
func (d *decoder) next() (key.Key, error) {
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return key.Key{}, err
		}

		switch {
		case b == esc:
			return d.escape()
		case b == '\r' || b == '\n':
			return key.Special(key.CodeEnter), nil
		case b == '\t':
			return key.Special(key.CodeTab), nil
		case b == 0x7f || b == 0x08:
			return key.Special(key.CodeBackspace), nil
		case b >= 0x01 && b <= 0x1a:
			return key.Ctrl(rune('a' + b - 1)), nil
		case b < 0x20:
			continue
		case b < utf8.RuneSelf:
			return key.Char(rune(b)), nil
		}

		if err := d.r.UnreadByte(); err != nil {
			return key.Key{}, err
		}
		r, _, err := d.r.ReadRune()
		if err != nil {
			return key.Key{}, err
		}
		if r == utf8.RuneError {
			continue
		}
		return key.Char(r), nil
	}
}

func (d *decoder) escape() (key.Key, error) {
	if d.r.Buffered() == 0 {
		return key.Special(key.CodeEscape), nil
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return key.Key{}, err
	}

	switch b {
	case '[':
		return d.csi()
	case 'O':
		return d.ss3()
	case esc:
		return key.Special(key.CodeEscape), nil
	}

	if b >= utf8.RuneSelf {
		if err := d.r.UnreadByte(); err != nil {
			return key.Key{}, err
		}
		r, _, err := d.r.ReadRune()
		if err != nil {
			return key.Key{}, err
		}
		return key.Alt(r), nil
	}
	return key.Alt(rune(b)), nil
}

var csiFinal = map[byte]key.Code{
	'A': key.CodeUp,
	'B': key.CodeDown,
	'C': key.CodeRight,
	'D': key.CodeLeft,
	'H': key.CodeHome,
	'F': key.CodeEnd,
}

var csiTilde = map[string]key.Code{
	"1":  key.CodeHome,
	"2":  key.CodeInsert,
	"3":  key.CodeDelete,
	"4":  key.CodeEnd,
	"5":  key.CodePageUp,
	"6":  key.CodePageDown,
	"15": key.CodeF5,
	"17": key.CodeF6,
	"18": key.CodeF7,
	"19": key.CodeF8,
	"20": key.CodeF9,
	"21": key.CodeF10,
	"23": key.CodeF11,
	"24": key.CodeF12,
}

// csi reads parameters up to the final byte. Unknown sequences are dropped.
func (d *decoder) csi() (key.Key, error) {
	var params []byte
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return key.Key{}, err
		}
		if b >= 0x40 && b <= 0x7e {
			if b == '~' {
				if code, ok := csiTilde[string(params)]; ok {
					return key.Special(code), nil
				}
			} else if code, ok := csiFinal[b]; ok && len(params) == 0 {
				return key.Special(code), nil
			}
			return d.next()
		}
		params = append(params, b)
	}
}

var ss3Final = map[byte]key.Code{
	'P': key.CodeF1,
	'Q': key.CodeF2,
	'R': key.CodeF3,
	'S': key.CodeF4,
	'A': key.CodeUp,
	'B': key.CodeDown,
	'C': key.CodeRight,
	'D': key.CodeLeft,
	'H': key.CodeHome,
	'F': key.CodeEnd,
}

func (d *decoder) ss3() (key.Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return key.Key{}, err
	}
	if code, ok := ss3Final[b]; ok {
		return key.Special(code), nil
	}
	return d.next()
}
