// Package main is the entrypoint for the FOI portal server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/openfoi/foiportal/internal/api"
	"github.com/openfoi/foiportal/internal/auth"
	"github.com/openfoi/foiportal/internal/config"
	"github.com/openfoi/foiportal/internal/db"
	"github.com/openfoi/foiportal/internal/jobs"
	"github.com/openfoi/foiportal/internal/law"
	"github.com/openfoi/foiportal/internal/lifecycle"
	"github.com/openfoi/foiportal/internal/mail"
	"github.com/openfoi/foiportal/internal/metrics"
	"github.com/openfoi/foiportal/internal/monitoring"
	"github.com/openfoi/foiportal/internal/search"
	"github.com/openfoi/foiportal/internal/storage"
	"github.com/openfoi/foiportal/internal/thread"
	"github.com/openfoi/foiportal/internal/throttle"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "foiportal-server",
		Short: "FOI portal server",
		Long:  "Server for filing, tracking and publishing freedom of information requests.",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "foiportal.yaml", "path to configuration file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the portal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	token := &cobra.Command{
		Use:   "token",
		Short: "Manage operator tokens",
	}
	tokenGenerate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new operator token and its hash",
		Long: "Prints a fresh operator token and the bcrypt hash to put in the " +
			"operator_tokens section of the configuration. The token itself is " +
			"shown once and not stored anywhere.",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, hash, err := auth.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Printf("token:      %s\ntoken_hash: %s\n", tok, hash)
			return nil
		},
	}
	token.AddCommand(tokenGenerate)

	version := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("foiportal-server %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		},
	}

	root.AddCommand(serve, token, version)
	return root
}

func runServe(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if os.Getenv("ENV") != string(config.EnvProduction) {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Msg("starting FOI portal server")

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return err
	}

	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to run database migrations")
		return err
	}

	// Attachment blob storage. S3 wins when configured.
	var blobs storage.BlobStore
	if cfg.Storage.S3 != nil {
		blobs, err = storage.NewS3Store(ctx, *cfg.Storage.S3, logger)
	} else {
		blobs, err = storage.NewLocalStore(cfg.Storage.LocalDir)
	}
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize blob storage")
		return err
	}

	transport, err := mail.NewSMTPTransport(cfg.SMTP, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize mail transport")
		return err
	}

	windows, err := cfg.ThrottleWindows()
	if err != nil {
		return err
	}
	holidays, err := cfg.HolidayDates()
	if err != nil {
		return err
	}

	m := metrics.New()
	indexer := search.NewPostgresIndexer(database.Pool)
	searcher := search.NewSearcher(database.Pool, logger)

	lifecycleService := lifecycle.NewService(
		database,
		transport,
		blobs,
		throttle.New(windows),
		law.NewCalendar(holidays),
		indexer,
		m,
		lifecycle.Config{
			SecretDomain: cfg.SecretDomain,
			From:         mail.Address{Name: "FOI Portal", Email: cfg.SMTP.From},
		},
		logger,
	)
	threadService := thread.NewService(database, blobs, m, logger)

	isSecure := cfg.Environment == config.EnvProduction
	sessions, err := auth.NewSessionStore(
		auth.DefaultSessionConfig([]byte(cfg.SessionSecret), isSecure, cfg.SessionMaxAge),
		logger,
	)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize session store")
		return err
	}

	var oidc *auth.OIDC
	if cfg.OIDC.Enabled() {
		oidc, err = auth.NewOIDC(ctx, auth.DefaultOIDCConfig(
			cfg.OIDC.Issuer,
			cfg.OIDC.ClientID,
			cfg.OIDC.ClientSecret,
			cfg.OIDC.RedirectURL,
		), logger)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize OIDC provider")
			return err
		}
	} else {
		logger.Info().Msg("OIDC not configured, operator token auth only")
	}

	credentials := make([]auth.OperatorCredential, 0, len(cfg.OperatorTokens))
	for _, t := range cfg.OperatorTokens {
		credentials = append(credentials, auth.OperatorCredential{Email: t.Email, TokenHash: t.TokenHash})
	}
	tokens := auth.NewTokenValidator(credentials, database, logger)

	router, err := api.NewRouter(api.Config{
		Environment:       cfg.Environment,
		AllowedOrigins:    cfg.CORSOrigins,
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitPeriod:   cfg.RateLimit.Period,
		RedisURL:          cfg.RedisURL,
		Version:           Version,
	}, api.Deps{
		DB:        database,
		Lifecycle: lifecycleService,
		Thread:    threadService,
		Searcher:  searcher,
		OIDC:      oidc,
		Sessions:  sessions,
		Tokens:    tokens,
		Metrics:   m,
		Collector: monitoring.NewCollector(cfg.Storage.LocalDir),
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize router")
		return err
	}

	scheduler, err := jobs.NewScheduler(database, m, cfg.OverdueCheckSchedule, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize scheduler")
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.Info().Str("signal", sig.String()).Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		return err
	}

	logger.Info().Msg("server stopped gracefully")
	return nil
}
