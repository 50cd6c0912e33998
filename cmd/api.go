package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/quickdesk/quickdesk/internal/config"
	"github.com/quickdesk/quickdesk/internal/database"
	"github.com/quickdesk/quickdesk/internal/handler"
	"github.com/quickdesk/quickdesk/internal/kafka"
	"github.com/quickdesk/quickdesk/internal/logging"
	"github.com/quickdesk/quickdesk/internal/push"
	"github.com/quickdesk/quickdesk/internal/router"
	"github.com/quickdesk/quickdesk/internal/service"
	"github.com/quickdesk/quickdesk/internal/storage"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Run the HTTP API server",
	RunE:  runAPI,
}

func runAPI(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.LogLevel, nil)
	logger.SetAsDefault()

	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store storage.BlobStore
	var filesDir string
	switch cfg.StorageDriver {
	case "s3":
		store, err = storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	default:
		disk, err := storage.NewDiskStore(cfg.StorageDir, cfg.PublicBaseURL)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		store = disk
		filesDir = disk.Dir()
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopicTicket)
	defer producer.Close()

	hub := push.NewHub(logger.Logger)
	ticketSvc := service.NewTicketService(db)
	messageSvc := service.NewMessageService(db)

	h := router.New(router.Deps{
		Ticket:   handler.NewTicketHandler(ticketSvc, producer, cfg.APIKey, logger.Logger),
		Message:  handler.NewMessageHandler(messageSvc, hub, producer, cfg.APIKey, logger.Logger),
		Upload:   handler.NewUploadHandler(store, logger.Logger),
		Hub:      hub,
		FilesDir: filesDir,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
