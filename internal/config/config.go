package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-jwt-secret"

const (
	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsAMQP  = "amqp"

	ProviderManual   = "manual"
	ProviderStripe   = "stripe"
	ProviderMidtrans = "midtrans"
)

type Config struct {
	App         AppConfig
	Server      ServerConfig
	DatabaseURL string
	JWT         JWTConfig
	Log         LogConfig
	OTel        OTelConfig
	Redis       RedisConfig
	Idempotency IdempotencyConfig
	Events      EventsConfig
	Payment     PaymentConfig
	Sweep       SweepConfig
	Calendar    string
	CORSOrigins []string
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
}

type OTelConfig struct {
	Enabled        bool
	CollectorAddr  string
	MetricInterval time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type IdempotencyConfig struct {
	TTL time.Duration
}

type EventsConfig struct {
	Driver        string
	KafkaBrokers  []string
	KafkaPrefix   string
	KafkaClientID string
	AMQPURL       string
	AMQPExchange  string
}

type PaymentConfig struct {
	Provider            string
	WebhookSecret       string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string
	MidtransServerKey   string
	MidtransProduction  bool
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// Load reads configuration from the environment, with an optional .env file
// in the working directory.
func Load() (*Config, error) {
	// a missing .env is fine, real deployments use the environment
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := bindConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "parnass")
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("APP_VERSION", "dev")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")

	v.SetDefault("DATABASE_URL", "parnass.db")

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", "24h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_METRIC_INTERVAL", "15s")

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_TTL", "24h")

	v.SetDefault("EVENTS_DRIVER", EventsNone)
	v.SetDefault("KAFKA_TOPIC_PREFIX", "")
	v.SetDefault("KAFKA_CLIENT_ID", "parnass")
	v.SetDefault("AMQP_EXCHANGE", "parnass.events")

	v.SetDefault("PAYMENT_PROVIDER", ProviderManual)
	v.SetDefault("MIDTRANS_PRODUCTION", false)

	v.SetDefault("SWEEP_INTERVAL", "10m")
	v.SetDefault("SWEEP_BATCH_SIZE", 200)

	v.SetDefault("CALENDAR", "gregorian")
}

func bindConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	cfg.App.Version = v.GetString("APP_VERSION")

	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")

	cfg.DatabaseURL = strings.TrimSpace(v.GetString("DATABASE_URL"))

	cfg.JWT.Secret = strings.TrimSpace(v.GetString("JWT_SECRET"))
	cfg.JWT.TTL = v.GetDuration("JWT_TTL")

	cfg.Log.Level = v.GetString("LOG_LEVEL")
	cfg.Log.Development = v.GetBool("LOG_DEVELOPMENT")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.MetricInterval = v.GetDuration("OTEL_METRIC_INTERVAL")

	cfg.Redis.Addr = strings.TrimSpace(v.GetString("REDIS_ADDR"))
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Idempotency.TTL = v.GetDuration("IDEMPOTENCY_TTL")

	cfg.Events.Driver = strings.ToLower(strings.TrimSpace(v.GetString("EVENTS_DRIVER")))
	cfg.Events.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Events.KafkaPrefix = v.GetString("KAFKA_TOPIC_PREFIX")
	cfg.Events.KafkaClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Events.AMQPURL = v.GetString("AMQP_URL")
	cfg.Events.AMQPExchange = v.GetString("AMQP_EXCHANGE")

	cfg.Payment.Provider = strings.ToLower(strings.TrimSpace(v.GetString("PAYMENT_PROVIDER")))
	cfg.Payment.WebhookSecret = v.GetString("SETTLEMENT_WEBHOOK_SECRET")
	cfg.Payment.StripeSecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Payment.StripeWebhookSecret = v.GetString("STRIPE_WEBHOOK_SECRET")
	cfg.Payment.StripeSuccessURL = v.GetString("STRIPE_SUCCESS_URL")
	cfg.Payment.StripeCancelURL = v.GetString("STRIPE_CANCEL_URL")
	cfg.Payment.MidtransServerKey = v.GetString("MIDTRANS_SERVER_KEY")
	cfg.Payment.MidtransProduction = v.GetBool("MIDTRANS_PRODUCTION")

	cfg.Sweep.Interval = v.GetDuration("SWEEP_INTERVAL")
	cfg.Sweep.BatchSize = v.GetInt("SWEEP_BATCH_SIZE")

	cfg.Calendar = strings.ToLower(strings.TrimSpace(v.GetString("CALENDAR")))
	cfg.CORSOrigins = splitList(v.GetString("CORS_ALLOWED_ORIGINS"))
	return cfg
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("SERVER_PORT must be > 0")
	}
	if c.JWT.TTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be > 0")
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL must be > 0")
	}

	switch c.Events.Driver {
	case EventsNone:
	case EventsKafka:
		if len(c.Events.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_DRIVER=kafka")
		}
	case EventsAMQP:
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when EVENTS_DRIVER=amqp")
		}
	default:
		return fmt.Errorf("EVENTS_DRIVER must be one of: none, kafka, amqp")
	}

	switch c.Payment.Provider {
	case ProviderManual:
	case ProviderStripe:
		if c.Payment.StripeSecretKey == "" || c.Payment.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required when PAYMENT_PROVIDER=stripe")
		}
	case ProviderMidtrans:
		if c.Payment.MidtransServerKey == "" {
			return fmt.Errorf("MIDTRANS_SERVER_KEY is required when PAYMENT_PROVIDER=midtrans")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER must be one of: manual, stripe, midtrans")
	}

	if c.IsProdLike() {
		if isEmptyOrDefault(c.JWT.Secret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		// the generic settlement webhook is mounted for every provider
		if strings.TrimSpace(c.Payment.WebhookSecret) == "" {
			return fmt.Errorf("in prod/release SETTLEMENT_WEBHOOK_SECRET must be set")
		}
	}
	return nil
}

func (c *Config) IsProdLike() bool {
	env := c.App.Environment
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
