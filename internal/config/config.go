package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration
type Config struct {
	Port     string
	LogLevel string

	// Anomaly engine
	AnomalyContamination float64
	AnomalyMinSamples    int

	// Clustering engine
	ClusterDefaultK   int
	ClusterMinSamples int

	// Forecast engine
	ForecastLookback    int
	ForecastDefaultDays int
}

// New loads configuration from environment variables
func New() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		AnomalyContamination: getEnvFloat("ANOMALY_CONTAMINATION", 0.1),
		AnomalyMinSamples:    getEnvInt("ANOMALY_MIN_SAMPLES", 5),
		ClusterDefaultK:      getEnvInt("CLUSTER_DEFAULT_K", 4),
		ClusterMinSamples:    getEnvInt("CLUSTER_MIN_SAMPLES", 5),
		ForecastLookback:     getEnvInt("FORECAST_LOOKBACK", 7),
		ForecastDefaultDays:  getEnvInt("FORECAST_DEFAULT_DAYS", 7),
	}

	if cfg.AnomalyContamination < 0.01 || cfg.AnomalyContamination > 0.5 {
		return nil, fmt.Errorf("ANOMALY_CONTAMINATION must be in [0.01, 0.5], got %v", cfg.AnomalyContamination)
	}
	if cfg.AnomalyMinSamples < 1 {
		return nil, fmt.Errorf("ANOMALY_MIN_SAMPLES must be positive, got %d", cfg.AnomalyMinSamples)
	}
	if cfg.ClusterMinSamples < 2 {
		return nil, fmt.Errorf("CLUSTER_MIN_SAMPLES must be at least 2, got %d", cfg.ClusterMinSamples)
	}
	if cfg.ForecastLookback < 2 {
		return nil, fmt.Errorf("FORECAST_LOOKBACK must be at least 2, got %d", cfg.ForecastLookback)
	}
	if cfg.ForecastDefaultDays < 1 || cfg.ForecastDefaultDays > 30 {
		return nil, fmt.Errorf("FORECAST_DEFAULT_DAYS must be in [1, 30], got %d", cfg.ForecastDefaultDays)
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
