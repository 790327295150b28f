// Command speaker-assistant is the terminal dashboard for the speaker
// assistant backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/yacekmm/SpeakerAssistant/internal/app"
	"github.com/yacekmm/SpeakerAssistant/internal/backend"
	"github.com/yacekmm/SpeakerAssistant/internal/config"
	"github.com/yacekmm/SpeakerAssistant/internal/journal"
	applog "github.com/yacekmm/SpeakerAssistant/internal/log"
	"github.com/yacekmm/SpeakerAssistant/internal/observability"
	"github.com/yacekmm/SpeakerAssistant/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	headless := cfg.Headless || !term.IsTerminal(int(os.Stdout.Fd()))
	level := applog.ParseLevel(cfg.LogLevel)

	var logger zerolog.Logger
	if headless {
		logger = applog.Headless(os.Stdout, level)
	} else {
		dir, err := applog.ResolveDir(cfg.LogPath)
		if err != nil {
			return fmt.Errorf("log directory: %w", err)
		}
		logFile, err := applog.Open(dir, level)
		if err != nil {
			return err
		}
		defer logFile.Close()
		logger = logFile.Logger
	}
	logger.Info().
		Str("backend", cfg.BackendURL).
		Bool("headless", headless).
		Msg("speaker assistant starting")

	metrics := observability.NewMetrics("speaker_assistant")
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("metrics server failed")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	dsn := cfg.JournalDSN
	if dsn == "default" {
		dsn = journal.DefaultPath()
	}
	openCtx, cancelOpen := context.WithTimeout(context.Background(), 10*time.Second)
	rec, err := journal.Open(openCtx, dsn)
	cancelOpen()
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer rec.Close()

	catalog := backend.NewCatalog(cfg.DevicesURL(), cfg.DiscoveryTimeout,
		backend.WithCatalogMetrics(metrics),
		backend.WithCatalogLogger(logger))
	streamURL := cfg.StreamURL()
	open := func(ctx context.Context) session.Stream {
		return backend.Dial(ctx, streamURL,
			backend.WithHandshakeTimeout(cfg.HandshakeTimeout),
			backend.WithWriteTimeout(cfg.WriteTimeout),
			backend.WithStreamMetrics(metrics),
			backend.WithStreamLogger(logger))
	}

	ctrl := session.New(catalog, open,
		session.WithJournal(rec),
		session.WithMetrics(metrics),
		session.WithLogger(logger))
	defer ctrl.Close()

	var (
		model app.Model
		opts  []tea.ProgramOption
	)
	if headless {
		model = app.New(ctrl, app.WithHeadless())
		opts = append(opts, tea.WithoutRenderer(), tea.WithInput(nil))
	} else {
		model = app.New(ctrl)
		opts = append(opts, tea.WithAltScreen())
	}

	p := tea.NewProgram(model, opts...)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrInterrupted) {
		return err
	}
	logger.Info().Str("session_id", ctrl.ID()).Msg("speaker assistant stopped")
	return nil
}
