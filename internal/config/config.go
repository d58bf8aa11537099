package config

import (
	"os"
	"strconv"

	"golmm/domain/model"
	"golmm/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Engine EngineConfig
	Data   DataConfig
	Server ServerConfig
}

// EngineConfig holds estimation settings; the recognized options of the
// engine surface are all here
type EngineConfig struct {
	Criterion     model.Criterion // REML or ML
	MaxIterations int             // optimizer budget
	VarianceFloor float64         // minimum variance component
	DFMethod      model.DFMethod  // residual or satterthwaite
	Workers       int             // 0 = one per core
}

// DataConfig holds observation-table source settings
type DataConfig struct {
	File        string // .xlsx or .csv export; empty when using a database
	DatabaseURL string
	Table       string
}

// ServerConfig holds the summary API settings
type ServerConfig struct {
	Port string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			Criterion:     model.Criterion(getEnvOrDefault("ESTIMATION_CRITERION", string(model.REML))),
			MaxIterations: getEnvIntOrDefault("MAX_ITERATIONS", model.DefaultOptions().MaxIterations),
			VarianceFloor: getEnvFloatOrDefault("VARIANCE_FLOOR", model.DefaultOptions().VarianceFloor),
			DFMethod:      model.DFMethod(getEnvOrDefault("DF_APPROXIMATION", string(model.DFResidual))),
			Workers:       getEnvIntOrDefault("WORKERS", 0),
		},
		Data: DataConfig{
			File:        getEnvOrDefault("DATA_FILE", ""),
			DatabaseURL: getEnvOrDefault("DATABASE_URL", ""),
			Table:       getEnvOrDefault("OBSERVATIONS_TABLE", "observations"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
	}

	if cfg.Engine.Criterion != model.REML && cfg.Engine.Criterion != model.ML {
		return nil, errors.ConfigInvalid("ESTIMATION_CRITERION must be REML or ML")
	}
	if cfg.Engine.DFMethod != model.DFResidual && cfg.Engine.DFMethod != model.DFSatterthwaite {
		return nil, errors.ConfigInvalid("DF_APPROXIMATION must be residual or satterthwaite")
	}
	if cfg.Engine.MaxIterations <= 0 {
		return nil, errors.ConfigInvalid("MAX_ITERATIONS must be positive")
	}
	if cfg.Engine.VarianceFloor <= 0 {
		return nil, errors.ConfigInvalid("VARIANCE_FLOOR must be positive")
	}
	return cfg, nil
}

// Options converts the engine configuration into engine options
func (c *Config) Options() model.Options {
	return model.Options{
		MaxIterations: c.Engine.MaxIterations,
		VarianceFloor: c.Engine.VarianceFloor,
		DFMethod:      c.Engine.DFMethod,
	}
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
