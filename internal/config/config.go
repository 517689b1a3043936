// Package config loads Wasabi settings from a YAML, TOML or JSON file.
//
//	address: 127.0.0.1:8080
//	auto_pong: true
//	greeting: welcome
//	keybindings:
//	  - key: t
//	    kind: text
//	    data: server test message
//	  - key: C-b
//	    kind: binary
//	    data: "\x01\x02"
//	  - key: F2
//	    kind: close
//	    code: 1001
//	    data: going away
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// EnvPrefix is the prefix of environment overrides, e.g. WASABI_AUTO_PONG.
const EnvPrefix = "WASABI"

// Binding is one keybinding entry.
type Binding struct {
	Key  string `mapstructure:"key"`
	Kind string `mapstructure:"kind"`
	Data string `mapstructure:"data"`
	Code int    `mapstructure:"code"`
}

// File is the decoded configuration file.
type File struct {
	Address           string    `mapstructure:"address"`
	AutoPong          bool      `mapstructure:"auto_pong"`
	LogIncoming       bool      `mapstructure:"log_incoming"`
	LogOutgoing       bool      `mapstructure:"log_outgoing"`
	Greeting          string    `mapstructure:"greeting"`
	BroadcastCapacity int       `mapstructure:"broadcast_capacity"`
	ReplyCapacity     int       `mapstructure:"reply_capacity"`
	Keybindings       []Binding `mapstructure:"keybindings"`

	set map[string]bool
}

var fields = []string{
	"address",
	"auto_pong",
	"log_incoming",
	"log_outgoing",
	"greeting",
	"broadcast_capacity",
	"reply_capacity",
}

// Load reads the file at path. The format follows the extension.
func Load(path string) (*File, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	f.set = make(map[string]bool, len(fields))
	for _, name := range fields {
		f.set[name] = v.IsSet(name)
	}
	return &f, nil
}

// IsSet reports whether name was present in the file or the environment.
func (f *File) IsSet(name string) bool {
	return f.set[name]
}

// Apply copies the fields that were set onto b and registers the keybindings.
// Binding errors are recorded by b and returned by its Build.
func (f *File) Apply(b *settings.Builder) error {
	if f.IsSet("address") {
		b.Address(f.Address)
	}
	if f.IsSet("auto_pong") {
		b.AutoPong(f.AutoPong)
	}
	if f.IsSet("log_incoming") {
		b.LogIncomingMessages(f.LogIncoming)
	}
	if f.IsSet("log_outgoing") {
		b.LogOutgoingMessages(f.LogOutgoing)
	}
	if f.IsSet("greeting") {
		if f.Greeting == "" {
			b.ClearOnConnectMessage()
		} else {
			b.OnConnectMessage(message.Text(f.Greeting))
		}
	}
	b.BroadcastCapacity(f.BroadcastCapacity)
	b.ReplyCapacity(f.ReplyCapacity)

	for i, kb := range f.Keybindings {
		k, err := key.Parse(kb.Key)
		if err != nil {
			return fmt.Errorf("keybindings[%d]: %w", i, err)
		}
		msg, err := kb.Message()
		if err != nil {
			return fmt.Errorf("keybindings[%d] %s: %w", i, k, err)
		}
		b.BindMessage(k, msg)
	}
	return b.Err()
}

// Message builds the message an entry sends. Control frames that would not fit
// on the wire fail with model.ErrInvalidMessage.
func (kb Binding) Message() (message.Message, error) {
	var msg message.Message
	switch strings.ToLower(strings.TrimSpace(kb.Kind)) {
	case "", "text":
		msg = message.Text(kb.Data)
	case "binary":
		msg = message.Binary([]byte(kb.Data))
	case "ping":
		msg = message.Ping([]byte(kb.Data))
	case "pong":
		msg = message.Pong([]byte(kb.Data))
	case "close":
		code := kb.Code
		if code == 0 {
			code = message.CloseNormal
		}
		msg = message.Close(code, kb.Data)
	default:
		return message.Message{}, fmt.Errorf("unknown message kind %q", kb.Kind)
	}
	if err := msg.Validate(); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}
