package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/stfn-ko/Wasabi/internal/config"
	"github.com/stfn-ko/Wasabi/internal/input/key"
	"github.com/stfn-ko/Wasabi/internal/logger"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/terminal"
	"github.com/stfn-ko/Wasabi/pkg/message"
)

// TestKey is bound to Defaults.TestMessage unless the config file binds it.
var TestKey = key.Char('t')

// Defaults are the per-binary starting values.
type Defaults struct {
	Address     string
	Greeting    string
	TestMessage string
}

// flags holds the parsed command line.
type flags struct {
	addr            string
	configPath      string
	autoPong        bool
	logIncoming     bool
	greeting        string
	journal         string
	metricsInterval time.Duration
	logLevel        string
	raw             bool
	set             map[string]bool
}

func parseFlags(name string, args []string, d Defaults, stderr io.Writer) (*flags, error) {
	f := &flags{set: make(map[string]bool)}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.addr, "addr", d.Address, "listen address or target URL")
	fs.StringVar(&f.configPath, "config", "", "path to a YAML, TOML or JSON config file")
	fs.BoolVar(&f.autoPong, "auto-pong", false, "answer every ping with a pong")
	fs.BoolVar(&f.logIncoming, "log-incoming", false, "log inbound frames")
	fs.StringVar(&f.greeting, "greeting", d.Greeting, "text sent when a connection opens, empty for none")
	fs.StringVar(&f.journal, "journal", "", "SQLite file recording each connection")
	fs.DurationVar(&f.metricsInterval, "metrics-interval", 0, "print metrics every interval, 0 disables")
	fs.StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.BoolVar(&f.raw, "raw", true, "read keys from stdin in raw mode; false uses a tcell screen")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

// buildSettings layers defaults, the config file, environment and flags, in
// increasing precedence.
func buildSettings(f *flags, d Defaults) (*settings.Settings, error) {
	b := settings.NewBuilder().Address(d.Address)
	if d.Greeting != "" {
		b.OnConnectMessage(message.Text(d.Greeting))
	}

	testKeyBound := false
	if f.configPath != "" {
		file, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(b); err != nil {
			return nil, err
		}
		for _, kb := range file.Keybindings {
			if k, err := key.Parse(kb.Key); err == nil && k == TestKey {
				testKeyBound = true
			}
		}
	}
	if !testKeyBound && d.TestMessage != "" {
		b.BindMessage(TestKey, message.Text(d.TestMessage))
	}

	if addr := getEnv("WASABI_ADDR", ""); addr != "" {
		b.Address(addr)
	}
	if f.set["addr"] {
		b.Address(f.addr)
	}
	if f.set["auto-pong"] {
		b.AutoPong(f.autoPong)
	}
	if f.set["log-incoming"] {
		b.LogIncomingMessages(f.logIncoming)
	}
	if f.set["greeting"] {
		if f.greeting == "" {
			b.ClearOnConnectMessage()
		} else {
			b.OnConnectMessage(message.Text(f.greeting))
		}
	}
	return b.Build()
}

// Main runs a binary for role and returns the process exit code.
func Main(role model.Role, d Defaults) int {
	f, err := parseFlags(os.Args[0], os.Args[1:], d, os.Stderr)
	if err != nil {
		return 2
	}

	cfg, err := buildSettings(f, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}

	var source terminal.Source
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if f.raw {
		source, err = terminal.NewRawSource(os.Stdin)
	} else {
		source, err = terminal.NewTcellSource()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open terminal: %v\n", err)
		return 1
	}

	lg := logger.New(os.Stderr, logger.Options{
		Level: f.logLevel,
		Raw:   interactive,
	})
	slog.SetDefault(lg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsOut io.Writer
	if f.metricsInterval > 0 {
		metricsOut = logger.NewRawWriter(os.Stderr)
	}

	lg.Info("starting", "role", string(role), "addr", cfg.Address(), "auto_pong", cfg.AutoPong())
	err = Run(ctx, Options{
		Role:            role,
		Settings:        cfg,
		JournalPath:     f.journal,
		MetricsOutput:   metricsOut,
		MetricsInterval: f.metricsInterval,
		Logger:          lg,
		Source:          source,
	})
	if err != nil {
		lg.Error("stopped", "error", err, "kind", model.ErrorKind(err))
		return 1
	}
	lg.Info("stopped")
	return 0
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
