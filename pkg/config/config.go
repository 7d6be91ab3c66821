package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Backend API
	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:5000"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`

	// Storage: memory, sqlite, redis or mongo
	StorageBackend string        `envconfig:"STORAGE_BACKEND" default:"sqlite"`
	StorageNS      string        `envconfig:"STORAGE_NAMESPACE" default:""`
	SQLitePath     string        `envconfig:"SQLITE_PATH" default:"./data/storefront.db"`
	RedisAddr      string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisTTL       time.Duration `envconfig:"REDIS_TTL" default:"0"`
	MongoURI       string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDatabase  string        `envconfig:"MONGO_DATABASE" default:"storefront"`

	// Checkout
	NotificationTTL  time.Duration `envconfig:"NOTIFICATION_TTL" default:"3s"`
	ConnectingAfter  time.Duration `envconfig:"PROCESSING_CONNECTING_AFTER" default:"1200ms"`
	SlowAfter        time.Duration `envconfig:"PROCESSING_SLOW_AFTER" default:"6s"`
	WhatsAppNumber   string        `envconfig:"WHATSAPP_NUMBER" default:""`
	ChatPollInterval time.Duration `envconfig:"CHAT_POLL_INTERVAL" default:"5s"`
	ChatReloadDelay  time.Duration `envconfig:"CHAT_RELOAD_DELAY" default:"2s"`

	// Kafka payment events; empty brokers disables the poller
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	KafkaTopic   string `envconfig:"KAFKA_TOPIC" default:"payment-events"`
	KafkaGroupID string `envconfig:"KAFKA_GROUP_ID" default:"storefront"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "memory", "sqlite", "redis", "mongo":
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.ChatPollInterval <= 0 {
		return fmt.Errorf("CHAT_POLL_INTERVAL must be positive, got %s", c.ChatPollInterval)
	}
	return nil
}

// Brokers splits KAFKA_BROKERS on commas.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
