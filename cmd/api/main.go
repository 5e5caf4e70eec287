package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"refinery/internal/aws"
	"refinery/internal/cache"
	"refinery/internal/config"
	"refinery/internal/database"
	"refinery/internal/engine"
	"refinery/internal/rabbitmq"
	"refinery/internal/server"
	"refinery/pkg/genai"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := "config/config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Logging)
	log.Info().Str("env", cfg.Env).Str("app", cfg.AppName).Msg("Starting content optimizer API")

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

	rabbitClient, err := rabbitmq.NewClientFromConfig(cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RabbitMQ client")
	}
	defer rabbitClient.Close()

	generator := genai.New(cfg.GenAI.APIKey, cfg.GenAI.BaseURL, cfg.GenAI.RequestsPerMinute,
		time.Duration(cfg.GenAI.TimeoutSeconds)*time.Second)
	defer generator.Close()
	log.Info().Int("requestsPerMinute", cfg.GenAI.RequestsPerMinute).Msg("Generation client initialized")

	reports, err := aws.NewReportService(cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket, cfg.S3.Region)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize S3 report service")
	}

	eng := engine.New(db, db, db, generator, engine.NewHub(), engine.NewRegistry(), engine.Config{
		ReviewDeviationPct: cfg.Optimizer.ReviewDeviationPct,
	})

	srv := server.New(*cfg, db, redisCache, rabbitClient, eng, reports)

	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Keep the application running until interrupted
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

func setupLogger(config config.LoggingConfig) {
	// Set global log level
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure logger output
	switch config.Format {
	case "json":
		// JSON is the default for zerolog
	case "console", "combined":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	// Add timestamp
	log.Logger = log.With().Timestamp().Logger()
}
