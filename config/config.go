package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the process settings of the order process system.
type Config struct {
	GRPCAddr            string
	WorkerCount         int
	CompletionQueueSize int
	MarketPrice         float64

	// PublishRingSize is the capacity of the drop copy ring. It must be a power of 2.
	PublishRingSize int64

	KafkaBrokers []string // empty disables the Kafka drop copy
	KafkaTopic   string

	FeedAddr string // empty disables the websocket feed and HTTP endpoints

	LogLevel string
	LogFile  string // empty logs to stdout only

	ShutdownTimeout time.Duration
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		GRPCAddr:            ":50010",
		WorkerCount:         9,
		CompletionQueueSize: 1024,
		MarketPrice:         5.0,
		PublishRingSize:     4096,
		KafkaTopic:          "execution-reports",
		LogLevel:            "info",
		ShutdownTimeout:     5 * time.Second,
	}
}

// Load reads configuration from the .env file at envPath (if it exists) and the environment.
// Priority: ENV > .env file > defaults.
func Load(envPath string) (Config, error) {
	cfg := Default()

	// the .env file is optional
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg.GRPCAddr, err = getEnv("GRPC_ADDR", cfg.GRPCAddr)
	collect(err)
	cfg.WorkerCount, err = getEnv("WORKER_COUNT", cfg.WorkerCount)
	collect(err)
	cfg.CompletionQueueSize, err = getEnv("COMPLETION_QUEUE_SIZE", cfg.CompletionQueueSize)
	collect(err)
	cfg.MarketPrice, err = getEnv("MARKET_PRICE", cfg.MarketPrice)
	collect(err)
	cfg.PublishRingSize, err = getEnv("PUBLISH_RING_SIZE", cfg.PublishRingSize)
	collect(err)
	cfg.KafkaTopic, err = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	collect(err)
	cfg.FeedAddr, err = getEnv("FEED_ADDR", cfg.FeedAddr)
	collect(err)
	cfg.LogLevel, err = getEnv("LOG_LEVEL", cfg.LogLevel)
	collect(err)
	cfg.LogFile, err = getEnv("LOG_FILE", cfg.LogFile)
	collect(err)
	cfg.ShutdownTimeout, err = getEnv("SHUTDOWN_TIMEOUT_MS", cfg.ShutdownTimeout)
	collect(err)

	brokers, err := getEnv("KAFKA_BROKERS", "")
	collect(err)
	cfg.KafkaBrokers = splitList(brokers)

	collect(cfg.Validate())

	return cfg, errors.Join(errs...)
}

// Validate checks values the components cannot recover from.
func (cfg Config) Validate() error {
	switch {
	case cfg.WorkerCount <= 0:
		return fmt.Errorf("WORKER_COUNT must be positive, got %d", cfg.WorkerCount)
	case cfg.CompletionQueueSize <= 0:
		return fmt.Errorf("COMPLETION_QUEUE_SIZE must be positive, got %d", cfg.CompletionQueueSize)
	case !(cfg.MarketPrice > 0):
		return fmt.Errorf("MARKET_PRICE must be positive, got %v", cfg.MarketPrice)
	case cfg.PublishRingSize <= 0 || cfg.PublishRingSize&(cfg.PublishRingSize-1) != 0:
		return fmt.Errorf("PUBLISH_RING_SIZE must be a power of 2, got %d", cfg.PublishRingSize)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
