// Package main provides the placefeed MCP gateway entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm/logger"

	"github.com/thebtf/placefeed/internal/config"
	"github.com/thebtf/placefeed/internal/db"
	"github.com/thebtf/placefeed/internal/db/gorm"
	"github.com/thebtf/placefeed/internal/db/supabase"
	"github.com/thebtf/placefeed/internal/mcp"
	"github.com/thebtf/placefeed/internal/metrics"
	"github.com/thebtf/placefeed/internal/privacy"
	"github.com/thebtf/placefeed/internal/tools"
	"github.com/thebtf/placefeed/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

const serverName = "placefeed-mcp"

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides settings)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	stdio := flag.Bool("stdio", false, "Serve MCP over stdin/stdout instead of HTTP")
	flag.Parse()

	// stdout may carry MCP traffic, so log to stderr
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	if err := config.EnsureAll(); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure settings file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if err := cfg.StoreConfigured(); err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("Store not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(cfg, *debug)
	if err != nil {
		log.Fatal().Str("error", privacy.RedactError(err)).Str("backend", cfg.Backend).Msg("Failed to initialize store")
	}
	defer closeBackend()

	store := db.NewBreaker(db.Instrument(backend, cfg.QueryTimeout), db.DefaultBreakerConfig(cfg.Backend))

	collector := metrics.NewCollector("placefeed")
	server := mcp.NewServer(serverName, Version, mcp.WithMetrics(collector))
	if err := tools.Register(server, store); err != nil {
		log.Fatal().Err(err).Msg("Failed to register tools")
	}

	if *stdio {
		log.Info().Str("backend", cfg.Backend).Msg("Serving MCP over stdio")
		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatal().Err(err).Msg("MCP stdio server error")
		}
		return
	}

	startWatchers()

	sessions := mcp.NewSessions(cfg.SessionTTL, collector.SetActiveSessions)
	transport := mcp.NewStreamableHandler(server, sessions, mcp.WithKeepAlive(cfg.KeepAlive))

	httpServer := &http.Server{
		Addr: cfg.Addr(),
		Handler: newRouter(routerDeps{
			cfg:       cfg,
			store:     store,
			backend:   backend,
			transport: transport,
			collector: collector,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		httpErrCh <- httpServer.ListenAndServe()
	}()

	log.Info().
		Str("addr", cfg.Addr()).
		Str("path", cfg.BasePath).
		Str("backend", cfg.Backend).
		Bool("tokenAuthEnabled", cfg.Token != "").
		Dur("sessionTTL", cfg.SessionTTL).
		Msg("Starting placefeed MCP gateway")

	select {
	case err := <-httpErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down placefeed MCP gateway")

		// Ends open GET streams and in-flight calls so Shutdown can drain.
		transport.Close()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
	}
}

// openBackend connects the configured store backend.
func openBackend(cfg *config.Config, debug bool) (db.Client, func(), error) {
	switch cfg.Backend {
	case config.BackendSupabase:
		c, err := supabase.New(supabase.Config{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey,
			Schema: cfg.SupabaseSchema,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil

	case config.BackendPostgres:
		level := logger.Silent
		if debug {
			level = logger.Info
		}
		store, err := gorm.NewStore(gorm.Config{
			DSN:         cfg.DatabaseDSN,
			MaxConns:    cfg.MaxConns,
			LogLevel:    level,
			AutoMigrate: cfg.AutoMigrate,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// startWatchers restarts the process when the settings file changes.
func startWatchers() {
	configPath := config.SettingsPath()
	configWatcher, err := watcher.New(configPath, func() {
		log.Warn().Str("path", configPath).Msg("Config file changed, exiting for restart...")
		time.Sleep(100 * time.Millisecond) // Give logs time to flush
		os.Exit(0)
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create config watcher")
		return
	}
	if err := configWatcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start config watcher")
		return
	}
	log.Info().Str("path", configPath).Msg("Config file watcher started")
}
