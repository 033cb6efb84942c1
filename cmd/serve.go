package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samsaffron/llm-gateway/internal/llm"
	pprofserver "github.com/samsaffron/llm-gateway/internal/pprof"
	"github.com/samsaffron/llm-gateway/internal/serve"
	"github.com/samsaffron/llm-gateway/internal/session"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveToken string
	serveStore string
	serveDB    string
	servePprof int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the streaming gateway",
	Long: `Run the HTTP gateway.

Routes (also mounted without the /api prefix):
  POST /api/chat            stream a generation as delimited JSON frames
  GET  /api/conversations   load a user's saved conversations
  POST /api/conversations   save a user's conversations
  GET  /health              store and provider status
  GET  /metrics             Prometheus metrics

Examples:
  llm-gateway serve --addr :8080
  llm-gateway serve --store memory --token s3cret
  llm-gateway serve --pprof            # profiler on a random localhost port`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, 127.0.0.1:8080)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Require this bearer token on API routes")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Conversation store: sqlite, postgres or memory")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path")
	serveCmd.Flags().IntVar(&servePprof, "pprof", -1, "Start a localhost pprof server on this port (0 for random)")
	serveCmd.Flags().Lookup("pprof").NoOptDefVal = "0"
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	if serveAddr != "" {
		cfg.Serve.Addr = serveAddr
	}
	if serveToken != "" {
		cfg.Serve.Token = serveToken
	}
	if serveStore != "" {
		cfg.Store.Driver = serveStore
	}
	if serveDB != "" {
		cfg.Store.Path = serveDB
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePprof >= 0 {
		prof := pprofserver.NewServer(logger)
		port, err := prof.Start(servePprof)
		if err != nil {
			return fmt.Errorf("start pprof: %w", err)
		}
		defer prof.Stop(context.Background())
		pprofserver.PrintUsage(cmd.ErrOrStderr(), port)
	}

	store, err := session.Open(ctx, cfg.SessionConfig())
	if err != nil {
		return fmt.Errorf("open conversation store: %w", err)
	}
	defer store.Close()
	logger.Info().Str("driver", cfg.Store.Driver).Msg("conversation store ready")

	configured := cfg.ConfiguredProviders()
	for _, kind := range llm.Kinds {
		if !configured[kind.String()] {
			logger.Warn().Str("provider", kind.String()).Str("env", llm.VariantFor(kind).CredentialEnv).Msg("provider has no credential")
		}
	}

	srv := serve.New(serve.Options{
		Gateway:        llm.NewGateway(cfg.ProviderConfigs(), logger),
		Store:          store,
		Logger:         logger,
		Token:          cfg.Serve.Token,
		AllowedOrigins: cfg.Serve.AllowedOrigins,
		Providers:      configured,
	})

	// No WriteTimeout: a generation stream stays open as long as the
	// upstream keeps producing.
	httpServer := &http.Server{
		Addr:              cfg.Serve.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Serve.Addr).Str("version", Version).Msg("starting llm-gateway")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
