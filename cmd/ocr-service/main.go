package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/venedoc/ocr-backend/internal/ocr/events"
	"github.com/venedoc/ocr-backend/internal/ocr/handler"
	"github.com/venedoc/ocr-backend/internal/ocr/recognizer"
	"github.com/venedoc/ocr-backend/internal/ocr/service"
	"github.com/venedoc/ocr-backend/pkg/config"
	"github.com/venedoc/ocr-backend/pkg/httputil"
	"github.com/venedoc/ocr-backend/pkg/logger"
	"github.com/venedoc/ocr-backend/pkg/messaging"
)

const serviceName = "ocr-service"

func main() {
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(serviceName, cfg.Server.Environment).SetLevel(cfg.Server.LogLevel)
	log.Info().
		Str("environment", cfg.Server.Environment).
		Int("port", cfg.Server.Port).
		Msg("starting ocr-service")

	// RabbitMQ is optional: extraction works without events, so a broken
	// broker downgrades to a warning instead of blocking startup
	var rmq *messaging.RabbitMQ
	var pub *events.Publisher
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Warn().Err(err).Msg("rabbitmq unavailable, events disabled")
		} else {
			defer rmq.Close()
			pub, err = events.NewPublisher(rmq, log)
			if err != nil {
				log.Warn().Err(err).Msg("failed to create event publisher, events disabled")
				pub = nil
			}
		}
	}

	engine := recognizer.NewPaddleClient(&cfg.Engine, log)
	vision := recognizer.NewVisionClient(&cfg.Vision, log)
	svc := service.New(cfg, engine, vision, pub, log)

	r := chi.NewRouter()
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOriginsList(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(engine, rmq, vision))
	handler.New(svc, log).Routes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("stopped")
}

// healthHandler reports service liveness plus dependency status. A dead
// broker or engine degrades the report, not the service.
func healthHandler(engine *recognizer.PaddleClient, rmq *messaging.RabbitMQ, vision *recognizer.VisionClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]any{
			"service": serviceName,
			"status":  "ok",
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := engine.Ping(ctx); err != nil {
			status["engine"] = "down"
		} else {
			status["engine"] = "up"
		}

		if rmq != nil {
			status["rabbitmq"] = rmq.Health()
		}
		status["vision_enabled"] = vision.Enabled()

		httputil.JSON(w, http.StatusOK, status)
	}
}
