package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfinance/insight-engine/internal/analytics/anomaly"
	"github.com/luxfinance/insight-engine/internal/analytics/cluster"
	"github.com/luxfinance/insight-engine/internal/analytics/forecast"
	"github.com/luxfinance/insight-engine/internal/api/handlers"
	"github.com/luxfinance/insight-engine/internal/api/middleware"
	"github.com/luxfinance/insight-engine/internal/config"
	"github.com/luxfinance/insight-engine/internal/logger"
	"github.com/luxfinance/insight-engine/internal/metrics"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		fallbackLog := logger.New("info")
		fallbackLog.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.New(cfg.LogLevel)

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheusCollector()
	if err := collector.Register(registry); err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// Engines
	anomalyEngine := anomaly.New(anomaly.Config{
		Contamination: cfg.AnomalyContamination,
		MinSamples:    cfg.AnomalyMinSamples,
	}, log)
	clusterEngine := cluster.New(cluster.Config{
		DefaultK:   cfg.ClusterDefaultK,
		MinSamples: cfg.ClusterMinSamples,
	}, log)
	forecastEngine := forecast.New(forecast.Config{
		Lookback: cfg.ForecastLookback,
	}, log)

	// Handlers
	analyticsHandler := handlers.NewAnalyticsHandler(anomalyEngine, clusterEngine, forecastEngine, collector, log)
	systemHandler := handlers.NewSystemHandler(log)

	// Router
	r := mux.NewRouter()
	r.HandleFunc("/api/v1/detect/anomaly", analyticsHandler.DetectAnomaly).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/cluster/behavior", analyticsHandler.ClusterBehavior).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/predict/trend", analyticsHandler.PredictTrend).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/info", systemHandler.Info).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.Health).Methods(http.MethodGet)
	r.HandleFunc("/", systemHandler.Root).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(r),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
