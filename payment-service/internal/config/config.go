package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
	StoreDriverMemory   = "memory"
)

type Config struct {
	HTTPAddr          string        `envconfig:"HTTP_ADDR" default:":8085"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"15s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"json"`
	StoreDriver       string        `envconfig:"STORE_DRIVER" default:"postgres"`
	SessionCookieName string        `envconfig:"SESSION_COOKIE_NAME" default:"connect.sid"`

	DB       DBConfig
	Mongo    MongoConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Gateway  GatewayConfig
	Merchant MerchantConfig
	Recovery RecoveryConfig
}

// Nested structs are read under their field name as prefix, so DB.User reads
// DB_USER. split_words only splits camel-case field names such as SSLMode.
type DBConfig struct {
	Host           string `default:"localhost"`
	Port           int    `default:"5432"`
	User           string `default:"postgres"`
	Password       string
	Name           string `default:"payments"`
	SSLMode        string `split_words:"true" default:"disable"`
	MigrationsPath string `split_words:"true" default:"payment-service/internal/repository/migrations"`
}

type MongoConfig struct {
	URI      string `default:"mongodb://localhost:27017"`
	Database string `default:"payments"`
}

type RedisConfig struct {
	Addr       string `default:"localhost:6379"`
	Password   string
	DB         int           `default:"0"`
	WebhookTTL time.Duration `split_words:"true" default:"72h"`
}

type KafkaConfig struct {
	Brokers []string `default:"localhost:9092"`
	Topic   string   `default:"payment-events"`
	Enabled bool     `default:"true"`
}

type GatewayConfig struct {
	BaseURL       string        `split_words:"true" default:"https://api.razorpay.com/v1"`
	KeyID         string        `split_words:"true" required:"true"`
	KeySecret     string        `split_words:"true" required:"true"`
	WebhookSecret string        `split_words:"true" required:"true"`
	Currency      string        `default:"INR"`
	Timeout       time.Duration `default:"10s"`
}

type MerchantConfig struct {
	UPIHandle string `split_words:"true" required:"true"`
	Name      string `default:"ProductLab"`
}

type RecoveryConfig struct {
	EventTick time.Duration `split_words:"true" default:"1s"`
	Tick      time.Duration `default:"30s"`
	Age       time.Duration `default:"2m"`
	BatchSize int           `split_words:"true" default:"100"`
}

// Load reads optional .env files and then the process environment. Explicit
// environment variables take precedence over .env values.
func Load(logger *logrus.Logger, envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("no .env file found, using environment variables")
		} else {
			logger.Warnf("error loading .env file (but continuing): %v", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"http_addr":    cfg.HTTPAddr,
		"store_driver": cfg.StoreDriver,
		"currency":     cfg.Gateway.Currency,
		"kafka":        cfg.Kafka.Enabled,
	}).Info("configuration loaded")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo, StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if len(c.Gateway.Currency) != 3 {
		return fmt.Errorf("invalid GATEWAY_CURRENCY %q", c.Gateway.Currency)
	}
	if c.Gateway.Timeout <= 0 {
		return errors.New("GATEWAY_TIMEOUT must be positive")
	}
	if c.Recovery.EventTick <= 0 || c.Recovery.Tick <= 0 {
		return errors.New("RECOVERY_EVENT_TICK and RECOVERY_TICK must be positive")
	}
	return nil
}
