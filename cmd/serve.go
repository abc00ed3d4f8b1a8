package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	api "docchat/handler/http"
	"docchat/src/core/chat"
	"docchat/src/core/chunk"
	"docchat/src/core/extract"
	"docchat/src/core/index"
	"docchat/src/core/ingest"
	"docchat/src/core/session"
	"docchat/src/fsutil"
	"docchat/src/infrastructure/integrations/ollama"
	"docchat/src/infrastructure/integrations/unstructured"
	"docchat/src/infrastructure/job"
	"docchat/src/infrastructure/log"
	"docchat/src/storage/minioctrl"
	"docchat/src/storage/postgres/sessionctrl"
	"docchat/src/storage/sessionfs"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the document chat server",
	Long:  `The serve command starts the HTTP server that ingests documents and answers grounded questions`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Chunking pipeline
	splitter, err := chunk.NewSplitter(viper.GetInt("chunk.size"), viper.GetInt("chunk.overlap"))
	if err != nil {
		return fmt.Errorf("invalid chunking config: %w", err)
	}

	// Ollama backs both embedding and generation
	oc := ollama.NewClient(
		viper.GetString("ollama.url"),
		viper.GetString("ollama.embedding_model"),
		viper.GetString("ollama.chat_model"),
		&http.Client{Timeout: 120 * time.Second},
	)

	idx := index.NewIndex()

	extractors := extract.NewRegistry(
		extract.NewPlainText(),
		unstructured.NewService(viper.GetString("unstructured.url"), &http.Client{
			Timeout: 120 * time.Second,
		}),
	)

	ingester := ingest.NewService(extractors, splitter, idx, oc)

	// Session persistence backend
	var db *gorm.DB
	var blobs session.BlobStore
	switch backend := viper.GetString("sessions.backend"); backend {
	case "postgres":
		db, err = openPostgres()
		if err != nil {
			return err
		}
		blobs, err = sessionctrl.NewSessionService(db)
		if err != nil {
			return fmt.Errorf("failed to initialize session storage: %w", err)
		}
	case "fs":
		blobs, err = sessionfs.NewStore(viper.GetString("sessions.data_dir"), fsutil.NewLocalFileStore())
		if err != nil {
			return fmt.Errorf("failed to initialize session storage: %w", err)
		}
	default:
		return fmt.Errorf("unknown sessions backend %q", backend)
	}

	sessions := session.NewService(blobs)
	chats := chat.NewService(idx, oc, sessions, oc,
		chat.WithHistoryWindow(viper.GetInt("chat.history_window")))

	handler := api.NewHandler(ingester, idx, sessions, chats)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional async ingestion path: oversized uploads are staged to MinIO
	// and consumed by an in-process watermill router, so the consumer
	// shares the index with the HTTP surface.
	var router *message.Router
	if viper.GetBool("ingest.async") {
		if db == nil {
			db, err = openPostgres()
			if err != nil {
				return err
			}
		}
		router, err = startJobRouter(ctx, db, ingester, handler)
		if err != nil {
			return err
		}
	}

	// Setup gin router
	r := gin.Default()
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
		}
	}()
	log.Info("Server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	cancel()
	if router != nil {
		<-router.Running()
	}

	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error(err, "Error closing database connection")
			}
		}
	}

	log.Info("Server exited")
	return nil
}

func openPostgres() (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// startJobRouter wires the staged-upload queue: the MinIO staging bucket,
// AMQP publisher/subscriber, the gorm job table, and a watermill router
// that feeds staged uploads back into the ingest service.
func startJobRouter(ctx context.Context, db *gorm.DB, ingester *ingest.Service, handler *api.Handler) (*message.Router, error) {
	logger := watermill.NewStdLogger(false, false)

	minioService, err := minioctrl.NewMinioService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio service: %w", err)
	}
	if err := minioService.EnsureBucketExists(ctx, minioctrl.UploadsBucket); err != nil {
		return nil, fmt.Errorf("failed to ensure staging bucket: %w", err)
	}

	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}

	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}

	jobRepo, err := job.NewPostgresJobRepository(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize job repository: %w", err)
	}
	jobService := job.NewJobService(amqpPublisher, jobRepo, logger, ingester, minioService)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)
	router.AddNoPublisherHandler(
		"job_processor",
		job.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Job router stopped")
		}
	}()

	handler.EnableAsyncIngestion(jobService, viper.GetInt64("ingest.async_threshold"))
	return router, nil
}
