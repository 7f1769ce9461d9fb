package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds process configuration for the question engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (database password) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database DatabaseConfig `yaml:"database"`
	Worker   WorkerConfig   `yaml:"worker"`
	Storage  StorageConfig  `yaml:"storage"`
}

// StorageConfig holds object store settings for source images and artifacts.
type StorageConfig struct {
	// UploadURL receives HTTP PUTs for newly stored objects.
	UploadURL string `yaml:"upload_url" env:"STORAGE_UPLOAD_URL" env-default:"http://localhost:9000/uploads"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"qbank"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"question_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// WorkerConfig holds background task execution settings.
type WorkerConfig struct {
	// MaxConcurrentLLM caps parallel LLM calls across all rewrite tasks.
	MaxConcurrentLLM int `yaml:"max_concurrent_llm" env:"WORKER_MAX_CONCURRENT_LLM" env-default:"5"`
	// OCRPollIntervalSeconds is the fixed wait between OCR batch status polls.
	OCRPollIntervalSeconds int `yaml:"ocr_poll_interval_seconds" env:"WORKER_OCR_POLL_INTERVAL_SECONDS" env-default:"5"`
	// OCRMaxWaitSeconds bounds the total OCR poll duration per batch.
	OCRMaxWaitSeconds int `yaml:"ocr_max_wait_seconds" env:"WORKER_OCR_MAX_WAIT_SECONDS" env-default:"600"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When no config.yaml exists the environment alone is used.
// The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Worker.MaxConcurrentLLM < 1 {
		return fmt.Errorf("worker.max_concurrent_llm must be at least 1")
	}
	if c.Worker.OCRPollIntervalSeconds < 1 {
		return fmt.Errorf("worker.ocr_poll_interval_seconds must be at least 1")
	}
	if c.Worker.OCRMaxWaitSeconds < c.Worker.OCRPollIntervalSeconds {
		return fmt.Errorf("worker.ocr_max_wait_seconds must be >= the poll interval")
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
