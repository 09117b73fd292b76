/*
main.go - Application entry point

PURPOSE:
  Starts the requisitions server, or creates the database schema.
  Handles configuration, dependency injection, and graceful shutdown.

COMMANDS:
  server [serve]           Run the HTTP server (default)
  server database create   Create missing tables and exit

FLAGS:
  --config   Path to the JSON configuration (default: instance/config.json)

STARTUP SEQUENCE (serve):
  1. Load configuration (JSON, .env, COMPRAS_* environment)
  2. Create a lazy database connector (unreachable backends do not stop startup)
  3. Create the session store (memory or Redis)
  4. Wire services, handler and router
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close session store and database connection
  4. Exit

ENVIRONMENT:
  COMPRAS_LOG_FORMAT=json   JSON logs instead of console output
  COMPRAS_<KEY>             Overrides a configuration key (e.g. COMPRAS_SECRET_KEY)

SEE ALSO:
  - config/config.go: Configuration document
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/consad/compras/api"
	"github.com/consad/compras/config"
	"github.com/consad/compras/requisition"
	"github.com/consad/compras/session"
	"github.com/consad/compras/store"
	"github.com/consad/compras/store/sqlstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Material requisitions server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var databaseCmd = &cobra.Command{
	Use:   "database",
	Short: "Database administration",
}

var databaseCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the database schema",
	Long:  `Creates every missing table of the configured backend. Existing tables are left untouched.`,
	Args:  cobra.NoArgs,
	RunE:  runDatabaseCreate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "instance/config.json", "path to the JSON configuration")

	databaseCmd.AddCommand(databaseCreateCmd)
	rootCmd.AddCommand(serveCmd, databaseCmd)
}

func main() {
	setupLogging(os.Stderr)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("exiting")
	}
}

func setupLogging(out io.Writer) {
	zerolog.TimeFieldFormat = time.RFC3339
	if config.LogFormat() == "json" {
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen})
}

// =============================================================================
// database create
// =============================================================================

func runDatabaseCreate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.Open(cmd.Context(), cfg.Backend)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CreateSchema(cmd.Context()); err != nil {
		return err
	}

	log.Info().Str("driver", string(db.Driver())).Msg("database schema created")
	return nil
}

// =============================================================================
// serve
// =============================================================================

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// Initialize store
	conn := store.NewConnector(cfg.Backend)
	defer conn.Close()

	if _, err := conn.Conn(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("database not reachable yet; will retry per request")
	}

	sessions, err := newSessionStore(cmd.Context(), cfg.Session)
	if err != nil {
		return err
	}
	defer sessions.Close()

	// Initialize handler
	repo := sqlstore.New(conn)
	handler := api.NewHandler(api.Services{
		Sessions: session.NewResolver(repo, sessions, session.NewSigner(cfg.SecretKey), cfg.Session.TTL),
		Catalog:  requisition.NewCatalog(repo),
		Gate:     requisition.NewGate(repo, nil),
		Engine:   requisition.NewEngine(repo, requisition.WithAtomicUpsert(cfg.AtomicUpsert)),
		Reader:   requisition.NewReader(repo),
	}, api.CookieOptions{
		Name:   cfg.Session.CookieName,
		Secure: cfg.Session.SecureCookie,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Server.Addr).
			Str("driver", string(cfg.Backend.Driver())).
			Str("sessions", string(cfg.Session.Store)).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

type closableStore interface {
	session.Store
	io.Closer
}

func newSessionStore(ctx context.Context, cfg config.Session) (closableStore, error) {
	switch cfg.Store {
	case config.SessionRedis:
		return session.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return session.NewMemoryStore(time.Minute), nil
	}
}
