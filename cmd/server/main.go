package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/heshamtamer/RPM/internal/api"
	"github.com/heshamtamer/RPM/internal/auth"
	"github.com/heshamtamer/RPM/internal/config"
	"github.com/heshamtamer/RPM/internal/db"
	apperrors "github.com/heshamtamer/RPM/internal/errors"
	"github.com/heshamtamer/RPM/internal/health"
	"github.com/heshamtamer/RPM/internal/logger"
	"github.com/heshamtamer/RPM/internal/metrics"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()

	logger.SetDefault(logger.New(os.Stdout, logger.ParseLevel(cfg.LogLevel), ""))

	database, err := db.New(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	var redisClient *redis.Client
	var limiter *auth.LoginLimiter
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis unavailable, login throttling disabled: %v", err)
			redisClient = nil
		} else {
			limiter = auth.NewLoginLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginAttemptWindow)
		}
		cancel()
	}

	userRepo := db.NewUserRepository(database)
	patientRepo := db.NewPatientRepository(database)

	authService := auth.NewService(userRepo, auth.Config{
		AccessSecret:  []byte(cfg.AccessTokenSecret),
		RefreshSecret: []byte(cfg.RefreshTokenSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	authHandlers := auth.NewHandlers(authService, limiter)
	patientHandlers := api.NewPatientHandlers(patientRepo)

	checker := health.NewChecker(database.DB, redisClient, 0)

	router := api.NewRouter(authHandlers, authService, patientHandlers, checker)

	handler := apperrors.RequestIDMiddleware(
		logger.LoggingMiddleware(
			logger.RecoveryMiddleware(
				metrics.Middleware(router),
			),
		),
	)

	log.Printf("Starting server on %s", cfg.ServerAddr)
	if err := http.ListenAndServe(cfg.ServerAddr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
