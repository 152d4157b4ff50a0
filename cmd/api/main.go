package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aidimport/internal/cache"
	"aidimport/internal/config"
	"aidimport/internal/database"
	"aidimport/internal/rabbitmq"
	"aidimport/internal/server"
	"aidimport/internal/storage"
	"aidimport/pkg/iati"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)

	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	log.Info().Msg("MongoDB connection established")

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize redis cache connection")
	}
	defer redisCache.Close()
	log.Info().Msg("Redis connection established")

	rabbit, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer rabbit.Close()
	log.Info().Msg("RabbitMQ connection established")

	fileService, err := storage.NewFileService(cfg.AWS)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 file service")
	}

	datastore := iati.New(cfg.IATI, redisCache)
	defer datastore.Close()

	srv := server.New(*cfg, db, redisCache, rabbit, datastore, fileService)

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt, then drain in-flight requests
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Forced server shutdown")
	}

	log.Info().Msg("Server stopped")
}

func setupLogger(config config.LoggingConfig) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if config.Format == "json" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
