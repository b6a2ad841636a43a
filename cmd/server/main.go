package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/gochat-relay/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()

	addr := flag.String("addr", config.Addr, "relay listen address (host:port)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	config.Addr = *addr
	config.Logger = logger

	if err := run(config); err != nil {
		logger.Error("relay exited", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func run(config *server.Config) error {
	relay := server.New(config)

	ln, err := relay.Listen()
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- relay.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), relay.Config().ShutdownTimeout)
	defer cancel()

	return relay.Shutdown(shutdownCtx)
}
