// Package key identifies terminal key presses independently of the terminal
// library that produced them.
//
// A Key is comparable and is used directly as a map key by keybinding tables.
// Character keys carry their rune; special keys carry a Code; Ctrl and Alt are
// modifiers.
package key

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Code identifies a non-character key. Character keys use CodeRune.
type Code uint16

const (
	CodeNone Code = iota
	CodeRune
	CodeEnter
	CodeEscape
	CodeTab
	CodeBackspace
	CodeDelete
	CodeInsert
	CodeHome
	CodeEnd
	CodePageUp
	CodePageDown
	CodeUp
	CodeDown
	CodeLeft
	CodeRight
	CodeF1
	CodeF2
	CodeF3
	CodeF4
	CodeF5
	CodeF6
	CodeF7
	CodeF8
	CodeF9
	CodeF10
	CodeF11
	CodeF12
)

var codeNames = map[Code]string{
	CodeEnter:     "Enter",
	CodeEscape:    "Esc",
	CodeTab:       "Tab",
	CodeBackspace: "BS",
	CodeDelete:    "Del",
	CodeInsert:    "Ins",
	CodeHome:      "Home",
	CodeEnd:       "End",
	CodePageUp:    "PgUp",
	CodePageDown:  "PgDn",
	CodeUp:        "Up",
	CodeDown:      "Down",
	CodeLeft:      "Left",
	CodeRight:     "Right",
}

// nameCodes maps lower-case names accepted by Parse to codes.
var nameCodes = map[string]Code{
	"enter":     CodeEnter,
	"return":    CodeEnter,
	"cr":        CodeEnter,
	"esc":       CodeEscape,
	"escape":    CodeEscape,
	"tab":       CodeTab,
	"bs":        CodeBackspace,
	"backspace": CodeBackspace,
	"del":       CodeDelete,
	"delete":    CodeDelete,
	"ins":       CodeInsert,
	"insert":    CodeInsert,
	"home":      CodeHome,
	"end":       CodeEnd,
	"pgup":      CodePageUp,
	"pageup":    CodePageUp,
	"pgdn":      CodePageDown,
	"pagedown":  CodePageDown,
	"up":        CodeUp,
	"down":      CodeDown,
	"left":      CodeLeft,
	"right":     CodeRight,
}

// String returns the display name of the code.
func (c Code) String() string {
	if c >= CodeF1 && c <= CodeF12 {
		return fmt.Sprintf("F%d", int(c-CodeF1)+1)
	}
	if name, ok := codeNames[c]; ok {
		return name
	}
	switch c {
	case CodeNone:
		return "None"
	case CodeRune:
		return "Rune"
	}
	return fmt.Sprintf("Code(%d)", c)
}

// Modifier is a bit set of modifier keys.
type Modifier uint8

const (
	ModNone Modifier = 0
	ModCtrl Modifier = 1 << iota
	ModAlt
)

// Key is a single key press.
type Key struct {
	Code Code
	Rune rune
	Mod  Modifier
}

// Char returns the key for a plain character.
func Char(r rune) Key {
	return Key{Code: CodeRune, Rune: r}
}

// Ctrl returns the key for Ctrl plus a letter. Letters are normalized to lower case.
func Ctrl(r rune) Key {
	return Key{Code: CodeRune, Rune: unicode.ToLower(r), Mod: ModCtrl}
}

// Alt returns the key for Alt plus a character.
func Alt(r rune) Key {
	return Key{Code: CodeRune, Rune: r, Mod: ModAlt}
}

// Special returns the key for a non-character code.
func Special(c Code) Key {
	return Key{Code: c}
}

// F returns the function key Fn for n in 1..12.
func F(n int) Key {
	if n < 1 || n > 12 {
		return Key{}
	}
	return Key{Code: CodeF1 + Code(n-1)}
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k == Key{}
}

// String returns the canonical form accepted by Parse, e.g. "t", "C-c", "A-x", "F5", "Enter".
func (k Key) String() string {
	var b strings.Builder
	if k.Mod&ModCtrl != 0 {
		b.WriteString("C-")
	}
	if k.Mod&ModAlt != 0 {
		b.WriteString("A-")
	}
	if k.Code == CodeRune {
		if k.Rune == ' ' {
			b.WriteString("Space")
		} else {
			b.WriteRune(k.Rune)
		}
	} else {
		b.WriteString(k.Code.String())
	}
	return b.String()
}

// Parse parses a key description such as "t", "C-c", "Ctrl+c", "A-x", "F5" or "enter".
func Parse(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, fmt.Errorf("empty key")
	}

	var mod Modifier
	for {
		lower := strings.ToLower(s)
		switch {
		case len(s) > 2 && (strings.HasPrefix(lower, "c-")):
			mod |= ModCtrl
			s = s[2:]
			continue
		case len(s) > 5 && strings.HasPrefix(lower, "ctrl+"):
			mod |= ModCtrl
			s = s[5:]
			continue
		case len(s) > 2 && (strings.HasPrefix(lower, "a-") || strings.HasPrefix(lower, "m-")):
			mod |= ModAlt
			s = s[2:]
			continue
		case len(s) > 4 && strings.HasPrefix(lower, "alt+"):
			mod |= ModAlt
			s = s[4:]
			continue
		}
		break
	}

	if utf8.RuneCountInString(s) == 1 {
		r, _ := utf8.DecodeRuneInString(s)
		if mod&ModCtrl != 0 {
			r = unicode.ToLower(r)
		}
		return Key{Code: CodeRune, Rune: r, Mod: mod}, nil
	}

	lower := strings.ToLower(s)
	if lower == "space" {
		return Key{Code: CodeRune, Rune: ' ', Mod: mod}, nil
	}
	if code, ok := nameCodes[lower]; ok {
		return Key{Code: code, Mod: mod}, nil
	}
	var n int
	if _, err := fmt.Sscanf(lower, "f%d", &n); err == nil && n >= 1 && n <= 12 && lower == fmt.Sprintf("f%d", n) {
		return Key{Code: CodeF1 + Code(n-1), Mod: mod}, nil
	}
	return Key{}, fmt.Errorf("unknown key %q", s)
}

// MustParse is like Parse but panics on error. It is meant for package-level tables.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}
