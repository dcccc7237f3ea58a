package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/pkg/logger"
	"github.com/maheshrc27/postflow/pkg/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	lg := logger.Setup(cfg.Logging)
	ctx := context.Background()

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialise storage: %v", err)
	}

	cipher, err := utils.NewTokenCipher([]byte(cfg.TokenEncryptionKey))
	if err != nil {
		log.Fatalf("Failed to initialise token cipher: %v", err)
	}
	if !cipher.Enabled() {
		lg.Warn("TOKEN_ENCRYPTION_KEY is not set, tokens are stored in plaintext")
	}

	var db *sql.DB
	history := repository.NewBlobPublishedPostRepository(store)
	if cfg.PostgresURI != "" {
		db, err = sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("Database is unreachable: %v", err)
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("Failed to prepare database schema: %v", err)
		}
		history = repository.NewPostgresPublishedPostRepository(db)
	}

	scheduleRepo := repository.NewScheduleRepository(store)
	tokenRepo := repository.NewTokenRepository(store, cipher)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokenService := service.NewTokenService(tokenRepo, map[models.Platform]service.Refresher{
		models.PlatformTwitter:   service.NewOAuth2Refresher(cfg.Twitter.ClientID, cfg.Twitter.ClientSecret, cfg.Twitter.TokenURL, httpClient),
		models.PlatformInstagram: service.NewInstagramRefresher(cfg.Instagram.RefreshURL, httpClient),
	})
	scheduleService := service.NewScheduleService(store, scheduleRepo, history)

	mediaHost := service.NewMediaHost(cfg.MediaDir, cfg.PublicBaseURL)
	adapters := []service.PlatformAdapter{
		service.NewInstagramAdapter(cfg.Instagram, store, mediaHost, httpClient),
		service.NewTwitterAdapter(cfg.Twitter, store, httpClient),
		service.NewFacebookAdapter(cfg.Facebook, store, httpClient),
	}

	var notifier queue.Notifier = queue.NewLogNotifier(lg)
	var asynqServer *asynq.Server
	if cfg.RedisURI != "" {
		redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
		client := asynq.NewClient(redisConn)
		defer client.Close()
		notifier = queue.NewAsynqNotifier(client)

		asynqServer = asynq.NewServer(redisConn, asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{queue.QueueNotifications: 1},
			Logger:      newAsynqLogger(lg),
		})
		mux := asynq.NewServeMux()
		queue.NewNotificationWorker(queue.NewLogNotifier(lg)).Register(mux)

		log.Println("Starting the Asynq server...")
		if err := asynqServer.Start(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}

	retry := queue.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Dispatcher.MaxAttempts
	retry.BaseDelay = cfg.Dispatcher.RetryBaseDelay
	retry.MaxDelay = cfg.Dispatcher.RetryMaxDelay

	dispatcher := queue.NewDispatcher(queue.DispatcherConfig{
		TickInterval:  cfg.Dispatcher.TickInterval,
		Workers:       cfg.Dispatcher.Workers,
		RatePerSecond: cfg.Dispatcher.RatePerSecond,
		Retry:         retry,
	}, scheduleRepo, tokenService, history, notifier, lg, adapters...)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(tokenService, models.Platforms)
	if err := dispatcher.Start(ctx, map[string]func(){
		"@every 00h10m00s": refreshTokenJob.RefreshTokens,
	}); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  2 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		BodyLimit:    int(cfg.MaxImageSize) + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.Error("request failed", "path", c.Path(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	// Instagram fetches hosted images from here.
	app.Static("/media", cfg.MediaDir)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())
	handlers.NewScheduleHandler(scheduleService, cfg.MaxImageSize).Register(api)

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	lg.Info("server is running", "addr", cfg.ListenAddr)

	gracefulShutdown(app, dispatcher, asynqServer, db)
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.BlobStore, error) {
	if cfg.StorageDriver == "memory" {
		slog.Warn("using in-memory storage, scheduled posts will not survive a restart")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewR2Store(ctx, cfg.R2)
}

func closeDB(db *sql.DB) {
	if db == nil {
		return
	}
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, dispatcher *queue.Dispatcher, asynqServer *asynq.Server, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}

	dispatcher.Stop()
	if asynqServer != nil {
		asynqServer.Shutdown()
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
