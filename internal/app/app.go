// Package app wires a Wasabi process: the broadcaster, the terminal listener,
// the optional journal and metrics, and the acceptor or initiator role.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stfn-ko/Wasabi/internal/broadcast"
	"github.com/stfn-ko/Wasabi/internal/client"
	"github.com/stfn-ko/Wasabi/internal/db"
	"github.com/stfn-ko/Wasabi/internal/metrics"
	"github.com/stfn-ko/Wasabi/internal/model"
	"github.com/stfn-ko/Wasabi/internal/repository"
	"github.com/stfn-ko/Wasabi/internal/server"
	"github.com/stfn-ko/Wasabi/internal/settings"
	"github.com/stfn-ko/Wasabi/internal/terminal"
)

// Options configures Run.
type Options struct {
	Role     model.Role
	Settings *settings.Settings

	// JournalPath enables the SQLite session journal when non-empty.
	JournalPath string

	// MetricsOutput receives JSON metric reports every MetricsInterval and
	// once on exit. Nil disables metrics.
	MetricsOutput   io.Writer
	MetricsInterval time.Duration

	Logger *slog.Logger

	// Source feeds the key listener. Run closes it on return. Nil runs without a listener.
	Source terminal.Source
}

// Run starts the role and blocks until ctx is cancelled, the quit key is
// pressed, or, for the initiator, the connection ends. Bind and dial failures
// are returned.
func Run(ctx context.Context, opts Options) error {
	if opts.Settings == nil {
		return model.ErrAddressRequired
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var m *metrics.Metrics
	if opts.MetricsOutput != nil {
		m = metrics.New(opts.MetricsOutput, opts.MetricsInterval)
		m.Start(ctx)
		defer m.WriteOnce()
	}

	b := broadcast.New(opts.Settings.BroadcastCapacity(), m)
	defer b.Close()

	var journal *repository.SessionRepository
	if opts.JournalPath != "" {
		repo, err := openJournal(opts.JournalPath)
		if err != nil {
			db.CloseDB()
			return err
		}
		defer func() {
			if err := db.CloseDB(); err != nil {
				logger.Warn("failed to close session journal", "error", err)
			}
		}()
		journal = repo
		logger.Info("session journal enabled", "path", opts.JournalPath)
	}

	if opts.Source != nil {
		defer opts.Source.Close()
		l := &terminal.Listener{
			Source:    opts.Source,
			Bindings:  opts.Settings.Keybindings(),
			Publisher: b,
			Logger:    logger,
			Metrics:   m,
		}
		done := l.Start()
		go func() {
			if err := <-done; err != nil {
				logger.Error("key listener stopped", "error", err)
			}
			cancel()
		}()
	}

	switch opts.Role {
	case model.RoleAcceptor:
		srvOpts := []server.Option{server.WithLogger(logger), server.WithMetrics(m)}
		if journal != nil {
			srvOpts = append(srvOpts, server.WithJournal(journal))
		}
		return server.New(opts.Settings, b, srvOpts...).ListenAndServe(ctx)

	case model.RoleInitiator:
		cliOpts := []client.Option{client.WithLogger(logger), client.WithMetrics(m)}
		if journal != nil {
			cliOpts = append(cliOpts, client.WithJournal(journal))
		}
		return client.New(opts.Settings, b, cliOpts...).Run(ctx)

	default:
		return fmt.Errorf("unknown role %q", opts.Role)
	}
}

func openJournal(path string) (*repository.SessionRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	database, err := db.InitDB(path)
	if err != nil {
		return nil, err
	}
	return repository.NewSessionRepository(database), nil
}
