// Command switchboard is the rendezvous proxy binary. It loads optional YAML
// configuration, starts the HTTP front and the WebSocket ping scheduler, and
// shuts down gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daid/switchboard/internal/config"
	"github.com/daid/switchboard/internal/httpapi"
	"github.com/daid/switchboard/internal/switchboard"
)

func main() {
	var (
		addr                 string
		configPath           string
		registrationPassword string
		staticDir            string
		logLevel             string
	)

	flag.StringVar(&addr, "addr", "", "HTTP listen address, e.g. :8000 (overrides config file)")
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (optional)")
	flag.StringVar(&registrationPassword, "registration-password", "", "shared password gating /game/register (overrides config file)")
	flag.StringVar(&staticDir, "static-dir", "", "directory to serve the landing page from (overrides config file)")
	flag.StringVar(&logLevel, "log-level", "", "log level: debug | info | warn | error (overrides config file)")
	flag.Parse()

	cfg := &config.Config{Addr: ":8000", StaticDir: "www", LogLevel: "info"}
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "switchboard: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if registrationPassword != "" {
		cfg.RegistrationPassword = registrationPassword
	}
	if staticDir != "" {
		cfg.StaticDir = staticDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if cfg.RegistrationPassword == "" {
		logger.Warn("registration-password not configured; /game/register accepts any secret_hash (dev mode)")
	}

	logger.Info("switchboard starting", slog.String("addr", cfg.Addr), slog.String("static_dir", cfg.StaticDir))

	sb := switchboard.New(logger)

	go sb.Pinger.Run()
	defer sb.Pinger.Stop()

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(sb, cfg.StaticDir, cfg.RegistrationPassword),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		// IdleTimeout intentionally left at default (0, meaning
		// ReadTimeout applies): the upgrade handler clears the deadlines
		// these timeouts leave on a hijacked connection before handing it
		// to the transport loop.
	}

	httpErrCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(httpErrCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-httpErrCh:
		if err != nil {
			logger.Error("HTTP server error", slog.Any("error", err))
		}
	}

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", slog.Any("error", err))
	}

	logger.Info("switchboard exited cleanly")
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
