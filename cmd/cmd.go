package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"circles-backend/internal/config"
	"circles-backend/internal/handlers"
	"circles-backend/internal/middleware"
	"circles-backend/internal/repository"
	"circles-backend/internal/services"
	"circles-backend/internal/storage"
	"circles-backend/internal/watch"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
)

func Run() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	// Connect to database
	db, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Blob storage
	blobs, err := storage.NewS3Store(
		context.Background(),
		cfg.AWS.Region,
		cfg.AWS.S3Bucket,
		cfg.AWS.AccessKey,
		cfg.AWS.SecretKey,
		cfg.AWS.Endpoint,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create blob store")
	}

	// Snapshot hub for live mirrors
	hub := watch.NewHub()

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	circleRepo := repository.NewCircleRepository(db)
	photoRepo := repository.NewPhotoRepository(db)
	friendRepo := repository.NewFriendRequestRepository(db)

	// Push notifications
	notifier, err := setupNotifier(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create APNs notifier")
	}

	// Initialize services
	userService := services.NewUserService(userRepo, cfg.JWT.Secret)
	circleService := services.NewCircleService(circleRepo, userRepo, blobs, hub, notifier)
	photoService := services.NewPhotoService(photoRepo, circleRepo, blobs, hub)
	friendService := services.NewFriendService(friendRepo, userRepo, notifier)
	cleanupService := services.NewCleanupService(circleRepo, blobs, hub, cfg.Cleanup.BatchSize)

	// Start the scheduled cleanup
	if err := cleanupService.Start(cfg.Cleanup.Schedule); err != nil {
		log.Fatal().Err(err).Msg("Failed to start cleanup scheduler")
	}
	defer cleanupService.Stop()

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	circleHandler := handlers.NewCircleHandler(circleService)
	photoHandler := handlers.NewPhotoHandler(photoService)
	friendHandler := handlers.NewFriendHandler(friendService)
	wsHandler := handlers.NewWebSocketHandler(hub, userService, circleService, photoService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.Register)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Put("/users/me/push-token", userHandler.UpdatePushToken)
			r.Put("/users/me/auto-accept-invites", userHandler.SetAutoAcceptInvites)
			r.Post("/users/{user_id}/block", friendHandler.BlockUser)

			r.Post("/circles", circleHandler.CreateCircle)
			r.Post("/circles/join", circleHandler.Join)
			r.Get("/circles", circleHandler.ListCircles)
			r.Get("/circles/{circle_id}", circleHandler.GetCircle)
			r.Patch("/circles/{circle_id}", circleHandler.UpdateCircle)
			r.Delete("/circles/{circle_id}", circleHandler.DeleteCircle)
			r.Post("/circles/{circle_id}/members", circleHandler.AddMember)
			r.Delete("/circles/{circle_id}/members/{member_id}", circleHandler.KickMember)
			r.Post("/circles/{circle_id}/leave", circleHandler.Leave)

			r.Get("/circles/{circle_id}/photos", photoHandler.ListPhotos)
			r.Post("/circles/{circle_id}/photos", photoHandler.UploadPhoto)
			r.Post("/photos", photoHandler.UploadFanout)
			r.Post("/photos/resolve-url", photoHandler.ResolveURL)

			r.Get("/friends", friendHandler.ListFriends)
			r.Post("/friends/requests", friendHandler.SendRequest)
			r.Get("/friends/requests", friendHandler.ListRequests)
			r.Post("/friends/requests/{request_id}/accept", friendHandler.AcceptRequest)
			r.Post("/friends/requests/{request_id}/decline", friendHandler.DeclineRequest)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// setupNotifier builds the APNs notifier, or nil when push is disabled.
func setupNotifier(cfg *config.Config) (services.PushNotifier, error) {
	if !cfg.APNS.Enabled {
		return nil, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.APNS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.APNS.KeyID,
		TeamID:  cfg.APNS.TeamID,
	})
	if cfg.APNS.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return services.NewAPNSNotifier(client, cfg.APNS.Topic), nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
