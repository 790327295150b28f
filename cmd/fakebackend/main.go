// Command fakebackend serves a stand-in speaker assistant backend with
// synthetic analysis frames, for running the dashboard without audio.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yacekmm/SpeakerAssistant/internal/fakebackend"
	applog "github.com/yacekmm/SpeakerAssistant/internal/log"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "listen address")
	interval := flag.Duration("interval", 5*time.Second, "synthetic analysis interval (0 disables)")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := applog.New(os.Stderr, applog.ParseLevel(*level))

	srv := fakebackend.New(fakebackend.DefaultDevices(), logger)
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *interval > 0 {
		go srv.RunSynthetic(ctx, *interval)
	}

	go func() {
		logger.Info().Str("addr", *addr).Dur("interval", *interval).Msg("fake backend listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.DropClients()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("fake backend stopped")
}
