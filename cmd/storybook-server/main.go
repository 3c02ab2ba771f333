package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"storybook-server/internal/config"
	"storybook-server/internal/genclient"
	"storybook-server/internal/handler"
	"storybook-server/internal/messaging"
	"storybook-server/internal/pipeline"
	"storybook-server/internal/repository"
	"storybook-server/internal/session"
	"storybook-server/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	zapLogger.Info("Starting storybook server",
		zap.String("env", cfg.AppEnv),
		zap.String("client", cfg.AIClientType),
		zap.String("store", cfg.StoreBackend),
		zap.String("strategy", cfg.IllustrationStrategy),
	)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	store, closeStore, err := repository.Open(startupCtx, cfg, zapLogger)
	cancelStartup()
	if err != nil {
		zapLogger.Fatal("Failed to open storybook store", zap.Error(err))
	}
	defer closeStore()

	client, err := genclient.NewClient(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create generation client", zap.Error(err))
	}
	p := pipeline.New(client, pipeline.OptionsFromConfig(cfg), zapLogger)

	hub := handler.NewHub(zapLogger)
	defer hub.Close()
	sinks := []session.EventSink{hub}

	if cfg.RabbitMQURL != "" {
		conn, err := messaging.Connect(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			zapLogger.Fatal("Failed to open RabbitMQ channel", zap.Error(err))
		}
		defer ch.Close()
		publisher, err := messaging.NewRabbitMQEventPublisher(ch, cfg.EventsExchange, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to create event publisher", zap.Error(err))
		}
		sinks = append(sinks, session.PublisherSink(publisher, zapLogger))
		zapLogger.Info("Publishing session events", zap.String("exchange", cfg.EventsExchange))
	}

	sessions := session.NewManager(p, client, store, cfg.SessionIdleTTL, zapLogger, sinks...)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go sessions.Run(reaperCtx)

	sessionHandler := handler.NewSessionHandler(sessions, hub, cfg.PublicBaseURL, cfg.CORSAllowedOrigins, zapLogger)
	router := handler.NewRouter(cfg, sessionHandler, zapLogger)

	// Narration waits for speech synthesis inside the request.
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AITimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("Starting HTTP server", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	stopReaper()
	sessions.Close()
	zapLogger.Info("Server exiting")
}
