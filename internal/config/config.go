package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Streaming ingestion, off unless KAFKA_ENABLED is true.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
	Concurrency        int

	// Imputer artifact and engine settings.
	ImputerPath     string
	DefaultK        int
	IndexCacheSize  int
	GCSBucket       string
	GCSObject       string
	GCSCredentials  string
	GCSFetchEnabled bool
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	defaultK, err := parsePositiveInt("IMPUTER_DEFAULT_K", 10)
	if err != nil {
		return nil, err
	}

	cacheSize, err := parseNonNegativeInt("INDEX_CACHE_SIZE", 64)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("IMPUTE_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "wildfire-partial-records"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "wildfire-imputed-features"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "wildfire-imputer"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		Concurrency:        concurrency,

		ImputerPath:    sharedcfg.EnvOrDefault("IMPUTER_PATH", "models/wildfire_imputer.json"),
		DefaultK:       defaultK,
		IndexCacheSize: cacheSize,
		GCSBucket:      os.Getenv("IMPUTER_GCS_BUCKET"),
		GCSObject:      sharedcfg.EnvOrDefault("IMPUTER_GCS_OBJECT", "wildfire_ml_models/wildfire_imputer.json"),
		GCSCredentials: os.Getenv("IMPUTER_GCS_CREDENTIALS"),
	}
	cfg.GCSFetchEnabled = cfg.GCSBucket != ""

	if cfg.ImputerPath == "" {
		return nil, errors.New("IMPUTER_PATH is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	n, err := parseNonNegativeInt(key, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("invalid " + key + ": must be positive")
	}
	return n, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key + ": must be a non-negative integer")
	}
	return n, nil
}
