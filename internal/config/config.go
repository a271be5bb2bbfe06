package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `validate:"required,oneof=development stage production"`
	Http Http

	Cors CORS `validate:"required"`

	Kafka Kafka `validate:"required"`

	Postgres Postgres `validate:"required"`

	Session Session `validate:"required"`

	Stripe Stripe `validate:"required"`
	Mpesa  Mpesa  `validate:"required"`
}

type Http struct {
	Host string `validate:"required,hostname|ip"`
	Port string `validate:"required,gt=0,lte=65535"`
}

type Kafka struct {
	Brokers []string `validate:"required,min=1,dive,hostname_port"`
	Topic   string   `validate:"required"`

	BatchTimeout time.Duration `validate:"gte=0"`
}

type Postgres struct {
	Host     string `validate:"required,hostname|ip"`
	Port     int    `validate:"required,gt=0,lte=65535"`
	DBName   string `validate:"required"`
	User     string `validate:"required"`
	Password string `validate:"required"`

	SSLMode string `validate:"required,oneof=disable require verify-ca verify-full"`

	MaxOpenConns    int           `validate:"gte=1"`
	MaxIdleConns    int           `validate:"gte=0"`
	ConnMaxLifetime time.Duration `validate:"gte=0"`
}

type CORS struct {
	AllowedOrigins []string `validate:"required,min=1,dive,url"`
}

type Session struct {
	Capacity int           `validate:"gte=1"`
	TTL      time.Duration `validate:"gt=0"`
}

type Stripe struct {
	SecretKey     string `validate:"required"`
	WebhookSecret string `validate:"required"`
	Currency      string `validate:"required,len=3"`

	// {CHECKOUT_SESSION_ID} подставляется провайдером в SuccessURL
	SuccessURL string `validate:"required,url"`
	CancelURL  string `validate:"required,url"`
}

type Mpesa struct {
	ConsumerKey    string `validate:"required"`
	ConsumerSecret string `validate:"required"`
	Shortcode      string `validate:"required"`
	Passkey        string `validate:"required"`

	BaseURL     string `validate:"required,url"`
	CallbackURL string `validate:"required,url"`

	Timeout time.Duration `validate:"gt=0"`
}

func New() Config {
	return Config{
		Env: env("ENV", "development"),

		Http: Http{
			Host: env("HOST", "localhost"),
			Port: env("PORT", "8080"),
		},

		Cors: CORS{
			AllowedOrigins: strings.Split(env("ALLOWED_CORS_ORIGINS", "http://localhost:3000"), ","),
		},

		Kafka: Kafka{
			Topic:   env("KAFKA_TOPIC", "order-events"),
			Brokers: strings.Split(env("KAFKA_BROKERS", "localhost:9092"), ","),

			BatchTimeout: envDuration("KAFKA_BATCH_TIMEOUT", 10*time.Millisecond),
		},

		Postgres: Postgres{
			Port:     envInt("POSTGRES_PORT", 5432),
			Host:     env("POSTGRES_HOST", "localhost"),
			DBName:   env("POSTGRES_DB", "shop"),
			User:     env("POSTGRES_USER", ""),
			Password: env("POSTGRES_PASSWORD", ""),

			SSLMode: env("POSTGRES_SSL_MODE", "disable"),

			MaxOpenConns:    envInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("POSTGRES_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: envDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		},

		Session: Session{
			Capacity: envInt("SESSION_CAPACITY", 10000),
			TTL:      envDuration("SESSION_TTL", 24*time.Hour),
		},

		Stripe: Stripe{
			SecretKey:     env("STRIPE_SECRET_KEY", ""),
			WebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      env("STRIPE_CURRENCY", "usd"),
			SuccessURL:    env("STRIPE_SUCCESS_URL", "http://localhost:3000/payments/success"),
			CancelURL:     env("STRIPE_CANCEL_URL", "http://localhost:3000/payments/cancel"),
		},

		Mpesa: Mpesa{
			ConsumerKey:    env("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret: env("MPESA_CONSUMER_SECRET", ""),
			Shortcode:      env("MPESA_SHORTCODE", ""),
			Passkey:        env("MPESA_PASSKEY", ""),
			BaseURL:        env("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			CallbackURL:    env("MPESA_CALLBACK_URL", "http://localhost:8080/payments/mpesa/callback"),
			Timeout:        envDuration("MPESA_TIMEOUT", 15*time.Second),
		},
	}
}

func (c Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

func env(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if len(fallback) == 0 {
		return ""
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}
