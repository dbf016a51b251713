package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/encodarr/internal/config"
	"github.com/jmylchreest/encodarr/internal/database"
	"github.com/jmylchreest/encodarr/internal/database/migrations"
	"github.com/jmylchreest/encodarr/internal/events"
	internalhttp "github.com/jmylchreest/encodarr/internal/http"
	"github.com/jmylchreest/encodarr/internal/http/handlers"
	"github.com/jmylchreest/encodarr/internal/repository"
	"github.com/jmylchreest/encodarr/internal/retention"
	"github.com/jmylchreest/encodarr/internal/service"
	"github.com/jmylchreest/encodarr/internal/supervisor"
	"github.com/jmylchreest/encodarr/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the encodarr server",
	Long: `Start the encodarr HTTP server and encoder supervisor.

The server provides:
- REST API for managing encoding jobs and their configs
- Server-Sent Events stream for live status, telemetry, and logs
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir", "", "Base directory for media and logs")
	serveCmd.Flags().String("ffmpeg", "", "Path to the ffmpeg binary (empty = auto-detect)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
	viper.BindPFlag("encoder.binary_path", serveCmd.Flags().Lookup("ffmpeg"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags win over config file and environment.
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = viper.GetString("server.host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = viper.GetInt("server.port")
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.Storage.BaseDir = viper.GetString("storage.base_dir")
	}
	if cmd.Flags().Changed("ffmpeg") {
		cfg.Encoder.BinaryPath = viper.GetString("encoder.binary_path")
	}

	if err := ensureStorageDirs(cfg.Storage); err != nil {
		return fmt.Errorf("preparing storage directories: %w", err)
	}

	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Repositories and event bus
	jobRepo := repository.NewJobRepository(db.DB)
	statsRepo := repository.NewStatisticsRepository(db.DB)
	archiveRepo := repository.NewArchiveRepository(db.DB)
	bus := events.NewBus(logger)

	// Supervisor
	sup, err := supervisor.New(cfg.Encoder, cfg.Storage, jobRepo, statsRepo, bus, logger)
	if err != nil {
		return fmt.Errorf("initializing supervisor: %w", err)
	}

	// Reconcile jobs left running by a previous process, then
	// optionally restart them.
	lost, err := sup.Reconcile(context.Background())
	if err != nil {
		return fmt.Errorf("reconciling jobs: %w", err)
	}
	if len(lost) > 0 {
		sup.AutoRestart(context.Background(), lost)
	}

	jobService := service.NewJobService(jobRepo, archiveRepo, statsRepo, sup).
		WithLogger(logger)

	// Retention sweeper
	sweeper := retention.NewSweeper(statsRepo, cfg.Encoder.StatsRetention).
		WithLogDir(cfg.Storage.LogPath()).
		WithLogger(logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("starting retention sweeper: %w", err)
	}
	defer sweeper.Stop()

	// HTTP server
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	if cfg.Server.ReadTimeout > 0 {
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Handlers
	healthHandler := handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithSupervisor(sup)
	healthHandler.Register(server.API())

	jobHandler := handlers.NewJobHandler(jobService)
	jobHandler.Register(server.API())

	archiveHandler := handlers.NewArchiveHandler(jobService)
	archiveHandler.Register(server.API())

	eventsHandler := handlers.NewEventsHandler(bus, logger)
	eventsHandler.Register(server.API())
	eventsHandler.RegisterSSE(server.Router())

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Host metrics publisher
	go sup.RunMetricsPublisher(ctx)

	logger.Info("starting encodarr server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	err = server.ListenAndServe(ctx)

	// Stop running encoders after the HTTP surface is down.
	sup.Shutdown(context.Background())

	return err
}

// ensureStorageDirs creates the storage tree up front so the first job
// does not fail on a missing directory.
func ensureStorageDirs(storage config.StorageConfig) error {
	for _, dir := range []string{
		storage.InputPath(),
		storage.OutputPath(),
		storage.HLSPath(),
		storage.LogPath(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
