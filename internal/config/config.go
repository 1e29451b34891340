package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Service
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"paylink"`
	Env             string        `env:"ENV" envDefault:"dev"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile         string        `env:"LOG_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Payment gateway. Checked when a call is made, not at startup.
	PaymentBaseURL      string        `env:"PAYMENTBASE_URL"`
	PaymentClientKey    string        `env:"PAYMENT_CLIENT_KEY"`
	PaymentClientSecret string        `env:"PAYMENT_CLIENT_SECRET"`
	PaymentTimeout      time.Duration `env:"PAYMENT_TIMEOUT" envDefault:"30s"`

	// Storage. An empty DATABASE_URL selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	SeedFile    string `env:"SEED_FILE"`

	// Receipts
	ReceiptDir     string `env:"RECEIPT_DIR" envDefault:"./data/receipts"`
	ReceiptBaseURL string `env:"RECEIPT_BASE_URL" envDefault:"http://localhost:8080"`

	// Mail
	MailHost     string `env:"MAIL_HOST"`
	MailPort     int    `env:"MAIL_PORT" envDefault:"587"`
	MailUsername string `env:"MAIL_USERNAME"`
	MailPassword string `env:"MAIL_PASS"`
	MailFrom     string `env:"MAIL_FROM"`

	// Events
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX" envDefault:"paylink."`

	// Cache
	RedisAddr       string        `env:"REDIS_ADDR"`
	ProductCacheTTL time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"5m"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.PaymentTimeout <= 0 {
		return nil, fmt.Errorf("parse config: PAYMENT_TIMEOUT must be positive")
	}
	return cfg, nil
}

func (c *Config) UseDatabase() bool { return c.DatabaseURL != "" }

func (c *Config) UseKafka() bool { return len(c.KafkaBrokers) > 0 }

func (c *Config) UseRedis() bool { return c.RedisAddr != "" }

func (c *Config) MailConfigured() bool {
	return c.MailHost != "" && c.MailUsername != "" && c.MailPassword != ""
}
