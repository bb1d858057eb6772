// arenad is the two-player match server.
//
// Usage: arenad -p <port>
//
// The -p option is mandatory; without a valid port the process exits
// non-zero before binding anything. SIGHUP triggers a graceful shutdown
// (stop accepting, shut down every client's read half, wait for all
// service loops to drain) and a zero exit status. SIGINT is deliberately
// left unhandled so operators can kill the server ungracefully.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/arenad/arenad/internal/arena"
	"github.com/arenad/arenad/internal/config"
)

const defaultConfigPath = "config/arenad.yaml"

func main() {
	port := flag.Int("p", 0, "port to listen on (required)")
	flag.Parse()
	if *port <= 0 || *port > 65535 {
		fmt.Fprintln(os.Stderr, "usage: arenad -p <port>")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *port); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, port int) error {
	cfgPath := defaultConfigPath
	if p := os.Getenv("ARENAD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))
	slog.Info("arenad starting", "port", port, "bind", cfg.BindAddress)

	srv := arena.NewServer(cfg, port)
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
