package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"homesite/internal/config"
	"homesite/internal/database"
	"homesite/internal/history"
	"homesite/internal/security"
	"homesite/internal/server"
	"homesite/internal/site"
	"homesite/internal/update"
	"homesite/internal/visits"
)

// ShutdownTimeout bounds how long in-flight requests may finish.
const ShutdownTimeout = 10 * time.Second

var (
	serveHost    string
	servePort    int
	serveLogFile string
	testMode     bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the website server",
	Long: `Start the HTTP server for the website and the update webhook.

After a webhook installs a new release the server exits with RESTART_EXIT_CODE;
run it under a supervisor that restarts it (see 'homesite unit').`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides HOMESITE_HOST)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides HOMESITE_PORT)")
	serveCmd.Flags().StringVar(&serveLogFile, "log", "", "Path to log file (overrides HOMESITE_LOG_FILE)")
	serveCmd.Flags().BoolVar(&testMode, "test-mode", false, "Disable rate limiting")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("log") {
		cfg.LogFile = serveLogFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	// Set up logging
	logger, logFileHandle, err := setupLogging(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if logFileHandle != nil {
		defer logFileHandle.Close()
	}
	slog.SetDefault(logger)

	logger.Info("Starting homesite", "version", version)

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	logger.Info("Database ready", "dialect", db.Dialect, "migrations_applied", len(applied))

	cache, err := site.New(site.Options{TemplateDir: cfg.TemplateDir, GalleryDir: cfg.GalleryDir})
	if err != nil {
		return fmt.Errorf("failed to load site: %w", err)
	}
	logger.Info("Site loaded", "blog_entries", len(cache.BlogEntries()), "images", len(cache.Images()))

	updater, err := newUpdater(cfg, cache, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(server.Config{
		WebhookSecret:  cfg.WebhookSecret,
		GalleryToken:   cfg.GalleryToken,
		APIToken:       cfg.APIToken,
		GitHubToken:    cfg.GitHubToken,
		StaticDir:      cfg.StaticDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ExposeOutput:   cfg.ExposeOutput,
		FailurePolicy:  server.FailurePolicy(cfg.FailurePolicy),
		TestMode:       testMode,
	}, cache, updater, logger)
	srv.Visits = visits.NewStore(db)
	srv.History = history.NewHistory(db)
	srv.Database = db

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start(cfg.Addr())
	}()

	var restart *server.RestartRequest
	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logger.Error("Server failed", "error", err)
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		logger.Info("Shutting down")
	case req := <-srv.RestartRequests():
		restart = &req
		// Let the response that triggered the restart reach the client.
		logger.Info("Restarting", "reason", req.Reason, "release", req.Release, "delay", cfg.RestartDelay)
		time.Sleep(cfg.RestartDelay)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", "error", err)
	}

	if restart != nil {
		return &exitError{code: cfg.RestartExitCode, reason: restart.Reason}
	}
	return nil
}

// newUpdater wires the update pipeline from the configuration. Without a
// GitHub token, deliveries that reference artifacts fail at the auth stage.
func newUpdater(cfg *config.Config, cache *site.Cache, logger *slog.Logger) (*update.Updater, error) {
	puller, err := update.NewCommandPuller(cfg.PullCommand, cfg.SiteRoot, cfg.CommandTimeout, logger)
	if err != nil {
		return nil, err
	}

	releases, err := update.NewReleaseManager(update.ReleaseManagerConfig{
		DeployRoot:     cfg.DeployRoot,
		BinaryName:     cfg.BinaryName,
		ExtractCommand: cfg.ExtractCommand,
		Timeout:        cfg.CommandTimeout,
		KeepReleases:   cfg.KeepReleases,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	updateCfg := update.Config{
		Puller:    puller,
		Installer: releases,
		Reloader:  cache,
		Logger:    logger,
	}

	if cfg.GitHubToken != "" {
		client, err := update.NewArtifactClient(update.ArtifactClientConfig{
			Token:     cfg.GitHubToken,
			BaseURL:   cfg.GitHubAPIURL,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.HTTPTimeout,
		})
		if err != nil {
			return nil, err
		}
		updateCfg.Artifacts = client
	} else {
		logger.Warn("GITHUB_TOKEN not set, artifact updates are disabled")
	}

	return update.New(updateCfg), nil
}

// setupLogging configures slog for JSON logging to stdout and, if logPath is
// set, to a log file. Returns the file handle for the caller to close.
func setupLogging(logPath string) (*slog.Logger, *os.File, error) {
	var (
		out  io.Writer = os.Stdout
		file *os.File
	)

	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), security.PermDirectory); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		var err error
		file, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return slog.New(handler), file, nil
}
