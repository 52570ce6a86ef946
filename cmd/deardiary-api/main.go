package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/affirmations"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/config"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/database"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/entries"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/journal"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/mood"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/sentiment"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/server"
	"github.com/MarcoPoloResearchLab/deardiary/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "deardiary-api",
		Short: "Dear Diary journal backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newClassifyCommand(sentiment.NewLexiconClassifier(nil)))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.Flags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.Flags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.Flags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.Flags().String("signing-secret", "", "TAuth session signing secret (overrides env)")
	cmd.Flags().String("cookie-name", defaults.GetString("tauth.cookie_name"), "Session cookie name")
	cmd.Flags().StringSlice("cors-origins", nil, "Allowed CORS origins (default: any)")
	cmd.Flags().String("affirmations-provider", defaults.GetString("affirmations.provider"), "Affirmation backend (openai, openai-chat, disabled)")
	cmd.Flags().String("affirmations-model", defaults.GetString("affirmations.model"), "Model used for affirmations")
	cmd.Flags().String("affirmations-base-url", "", "Base URL for OpenAI-compatible endpoints")
	cmd.Flags().Duration("affirmations-timeout", defaults.GetDuration("affirmations.timeout"), "Timeout for one generation attempt")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "tauth.signing_secret", "signing-secret")
	bindFlag(cmd, "tauth.cookie_name", "cookie-name")
	bindFlag(cmd, "cors.allowed_origins", "cors-origins")
	bindFlag(cmd, "affirmations.provider", "affirmations-provider")
	bindFlag(cmd, "affirmations.model", "affirmations-model")
	bindFlag(cmd, "affirmations.base_url", "affirmations-base-url")
	bindFlag(cmd, "affirmations.timeout", "affirmations-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.TAuthSigningKey),
		Issuer:        appConfig.TAuthIssuer,
		CookieName:    appConfig.TAuthCookieName,
	})
	if err != nil {
		return err
	}

	identities, err := users.NewService(users.ServiceConfig{
		Database: db,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return err
	}

	entryService, err := entries.NewService(entries.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: entries.NewUUIDProvider(),
		Logger:     logger.Named("entries"),
	})
	if err != nil {
		return err
	}

	generator, err := affirmations.NewGenerator(affirmations.ProviderConfig{
		Provider: appConfig.Affirmations.Provider,
		APIKey:   appConfig.Affirmations.APIKey,
		Model:    appConfig.Affirmations.Model,
		BaseURL:  appConfig.Affirmations.BaseURL,
		Logger:   logger.Named("affirmations"),
	})
	if err != nil {
		return err
	}

	dispatcher := realtime.NewDispatcher()
	moods := mood.NewRegistry(dispatcher, time.Now)
	journalLogger := logger.Named("journal")
	orchestrator, err := journal.NewOrchestrator(journal.Config{
		Classifier:        sentiment.NewLexiconClassifier(nil),
		Entries:           entryService,
		Generator:         generator,
		Moods:             moods,
		Notifier:          dispatcher,
		Tasks:             journal.NewRunner(dispatcher, journalLogger, 0),
		GenerationTimeout: appConfig.Affirmations.Timeout,
		GenerationRetry:   journal.RetryPolicy{MaxAttempts: appConfig.Affirmations.MaxAttempts},
		WriteRetry:        journal.RetryPolicy{MaxAttempts: appConfig.EntryWriteAttempts},
		Logger:            journalLogger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          sessions,
		Identities:        identities,
		Entries:           entryService,
		Journal:           orchestrator,
		Moods:             moods,
		Events:            dispatcher,
		AllowedOrigins:    appConfig.CORSAllowedOrigins,
		HeartbeatInterval: appConfig.HeartbeatInterval,
		HealthCheck:       sqlDB.PingContext,
		Logger:            logger.Named("http"),
	})
	if err != nil {
		return err
	}

	// Cancelling the base context ends open event streams so Shutdown can drain.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("affirmations_provider", appConfig.Affirmations.Provider))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
		defer cancel()
		cancelBase()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if err := orchestrator.WaitForTasks(shutdownCtx); err != nil {
			logger.Warn("background tasks still running at shutdown", zap.Error(err))
		}
		logger.Info("server stopped")
		return shutdownErr
	case err := <-errCh:
		return err
	}
}
