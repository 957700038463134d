package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/galleria/backend/internal/config"
	"github.com/galleria/backend/internal/handlers"
	"github.com/galleria/backend/internal/middleware"
	"github.com/galleria/backend/internal/models"
	"github.com/galleria/backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Select artifact store backend
	var store services.ArtifactStore
	switch cfg.StorageBackend {
	case "s3":
		s3Store, err := services.NewS3Store(cfg)
		if err != nil {
			log.Fatalf("Failed to init S3 store: %v", err)
		}
		store = s3Store
		log.Printf("Artifact store: s3 (bucket %s)", cfg.S3Bucket)
	default:
		store = services.NewLocalStore(cfg)
		log.Printf("Artifact store: local (%s)", cfg.LocalAssetsPath)
	}

	// Initialize services
	validator := services.NewValidatorService(cfg)
	transformer := services.NewTransformService(cfg, services.HeuristicScorer{})
	catalog := services.NewCatalogService(db, nil)
	photoService := services.NewPhotoService(cfg, validator, transformer, store, catalog)

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	photoHandler := handlers.NewPhotoHandler(photoService)
	moderationHandler := handlers.NewModerationHandler(photoService)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api/v1")
	{
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		photos := api.Group("/photos")
		photos.Use(middleware.Auth(cfg))
		{
			photos.GET("", photoHandler.List)
			photos.PUT("/order", photoHandler.Reorder)
			photos.GET("/:id", photoHandler.Get)
			photos.PATCH("/:id", photoHandler.Update)
			photos.DELETE("/:id", photoHandler.Delete)
			photos.POST("/:id/primary", photoHandler.SetPrimary)
			photos.GET("/:id/file/:tier", photoHandler.Stream)

			uploadGroup := photos.Group("")
			uploadGroup.Use(middleware.UploadRateLimit(redisClient, cfg))
			{
				uploadGroup.POST("", photoHandler.Upload)
			}
		}

		// Role enforcement for moderation is handled upstream (gateway);
		// the group only requires an authenticated caller here.
		moderation := api.Group("/moderation")
		moderation.Use(middleware.Auth(cfg))
		{
			moderation.GET("/photos", moderationHandler.List)
			moderation.PUT("/photos/:id", moderationHandler.Update)
			moderation.GET("/photos/:id/history", moderationHandler.History)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
