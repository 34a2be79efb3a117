package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"playlog/api/config"
	"playlog/api/database"
	"playlog/api/etl"
	"playlog/api/handlers"
	"playlog/api/middleware"
	"playlog/api/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env at the very start; absence is fine in deployed environments.
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "no .env file loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Verbose)

	if len(os.Args) > 1 && os.Args[1] == "load" {
		return runLoad(log, cfg, os.Args[2:])
	}
	return runServer(log, cfg)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
}

// runLoad is the one-shot batch mode: extract the raw event logs, reset the
// target tables and reload them, then exit.
func runLoad(log *slog.Logger, cfg config.Config, args []string) error {
	flags := flag.NewFlagSet("load", flag.ContinueOnError)
	dir := flags.String("dir", cfg.EventDataDir, "root directory of raw event log files")
	artifact := flags.String("artifact", cfg.ArtifactPath, "optional path for the combined canonical record file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := cfg.ValidateClickHouse(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chClient, err := database.NewClickHouseDB(ctx, log, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to initialize ClickHouse database: %w", err)
	}
	defer chClient.Close()

	playStore := store.NewPlayStore(chClient.Conn(), log)
	result, err := etl.Run(ctx, log, *dir, *artifact, playStore)
	if err != nil {
		return err
	}

	log.Info("load finished",
		"runId", result.RunID,
		"files", result.Files,
		"rawRows", result.RawRows,
		"records", result.Records,
		"discarded", result.Discarded,
	)
	return nil
}

func runServer(log *slog.Logger, cfg config.Config) error {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := cfg.ValidateClickHouse(); err != nil {
		return err
	}

	// --- PostgreSQL holds API user accounts ---
	dbClient, err := database.NewPostgresDB(log, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL database: %w", err)
	}
	defer dbClient.Close()

	// --- ClickHouse holds the denormalized play tables ---
	ctx := context.Background()
	chClient, err := database.NewClickHouseDB(ctx, log, cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("failed to initialize ClickHouse database: %w", err)
	}
	defer chClient.Close()

	userStore := store.NewUserStore(dbClient.DB, log)
	playStore := store.NewPlayStore(chClient.Conn(), log)

	authHandlers := handlers.NewAuthHandlers(userStore, log)
	playHandlers := handlers.NewPlayHandlers(playStore, log, cfg.EventDataDir, cfg.ArtifactPath)

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	api := r.Group("/api")
	{
		api.POST("/signup", authHandlers.Signup)
		api.POST("/login", authHandlers.Login)
		api.POST("/logout", authHandlers.Logout)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(log))
		{
			protected.POST("/load", playHandlers.Load)
			protected.GET("/sessions/:session_id/items/:item", playHandlers.GetSessionItem)
			protected.GET("/users/:user_id/sessions/:session_id/plays", playHandlers.GetUserSessionPlays)
			protected.GET("/songs/:song/listeners", playHandlers.GetSongListeners)
			protected.GET("/stats/table-counts", playHandlers.GetTableCounts)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting", "addr", "http://localhost:"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}
