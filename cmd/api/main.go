package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"profilehub-api/internal/cache"
	"profilehub-api/internal/config"
	"profilehub-api/internal/handler"
	"profilehub-api/internal/middleware"
	"profilehub-api/internal/repository"
	"profilehub-api/internal/router"
	"profilehub-api/internal/service"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting ProfileHub API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Initialize profile repository based on config
	var profileRepo repository.ProfileRepository
	switch cfg.ProfileDB.Type {
	case "mongodb", "mongo":
		mongoRepo, err := repository.NewMongoDBProfileRepository(
			cfg.ProfileDB.MongoURI,
			cfg.ProfileDB.MongoDatabase,
			cfg.ProfileDB.MongoCollection,
		)
		if err != nil {
			log.Fatalf("Failed to initialize MongoDB: %v", err)
		}
		defer mongoRepo.Close()
		profileRepo = mongoRepo
		log.Println("MongoDB profile repository initialized")
	case "postgres", "postgresql":
		pgRepo, err := repository.NewPostgresProfileRepository(cfg.ProfileDB.PostgresDSN())
		if err != nil {
			log.Fatalf("Failed to initialize PostgreSQL: %v", err)
		}
		defer pgRepo.Close()
		profileRepo = pgRepo
		log.Println("PostgreSQL profile repository initialized")
	case "memory":
		profileRepo = repository.NewMemoryProfileRepository()
		log.Println("In-memory profile repository initialized")
	default: // sqlite
		sqliteRepo, err := repository.NewSQLiteProfileRepository(cfg.ProfileDB.Path)
		if err != nil {
			log.Fatalf("Failed to initialize SQLite: %v", err)
		}
		defer sqliteRepo.Close()
		profileRepo = sqliteRepo
		log.Println("SQLite profile repository initialized")
	}

	// Initialize MySQL connection for key accounts (optional)
	var err error
	var mysqlDB *sql.DB
	var keyAccountRepo *repository.MySQLKeyAccountRepository

	mysqlDSN := cfg.Database.DSN()
	mysqlDB, err = sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Printf("Warning: MySQL connection failed: %v", err)
	} else {
		mysqlDB.SetMaxOpenConns(10)
		mysqlDB.SetMaxIdleConns(5)
		mysqlDB.SetConnMaxLifetime(5 * time.Minute)

		if err := mysqlDB.Ping(); err != nil {
			log.Printf("Warning: MySQL ping failed: %v", err)
			mysqlDB.Close()
			mysqlDB = nil
		} else {
			keyAccountRepo = repository.NewMySQLKeyAccountRepository(mysqlDB)
			log.Println("MySQL repository initialized")
		}
	}
	if mysqlDB != nil {
		defer mysqlDB.Close()
	}

	// Initialize Redis client
	redisAddr := cfg.Cache.RedisAddress()
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed: %v", err)
		redisClient = nil
	} else {
		log.Println("Redis client initialized")
	}
	cancel()

	// Initialize the snapshot cache
	var snapshotCache cache.Cache
	if cfg.Cache.Type == "redis" && redisClient != nil {
		redisCache, err := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:     redisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Printf("Warning: Redis cache initialization failed: %v", err)
			snapshotCache = cache.NewMemoryCache()
			log.Println("Falling back to in-memory snapshot cache")
		} else {
			defer redisCache.Close()
			snapshotCache = redisCache
			log.Println("Redis snapshot cache initialized")
		}
	} else {
		snapshotCache = cache.NewMemoryCache()
		log.Println("In-memory snapshot cache initialized")
	}

	// Initialize services
	profileService := service.NewProfileServiceWithCache(profileRepo, snapshotCache, cfg.Cache.SnapshotTTL)

	var tokenService *service.TokenService
	if redisClient != nil {
		tokenService = service.NewTokenService(redisClient)
	}

	// Initialize handlers
	healthHandler := handler.New()
	profileHandler := handler.NewProfileHandler(profileService)
	adminHandler := handler.NewAdminHandler(profileRepo, profileService, cfg.ProfileDB.Type)

	var authHandler *handler.AuthHandler
	if tokenService != nil && keyAccountRepo != nil {
		authHandler = handler.NewAuthHandler(tokenService, keyAccountRepo)
	}

	// Create auth middleware with injected dependencies (NO GLOBALS!)
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		TokenService: tokenService,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		ProfileHandler: profileHandler,
		AdminHandler:   adminHandler,
		AuthHandler:    authHandler,
		AuthMiddleware: authMiddleware,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
