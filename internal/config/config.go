// Package config collects every environment knob in one place. main loads a
// .env file first (godotenv), so local development works without exporting
// anything by hand.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          int
	PublicBaseURL string

	DatabaseURL string

	JWTSecret string

	// payment
	PaymentProvider string // "test" or "stripe"
	StripeSecretKey string
	Currency        string

	// mail
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	// outbox worker
	WorkerBatch    int
	WorkerInterval time.Duration

	// signed download links
	DownloadTokenTTL time.Duration

	// uploads
	UploadsDir string

	// kafka
	KafkaBrokers []string

	// consul
	ConsulAddr  string
	ServiceName string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             envInt("PORT", 4000),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        getEnv("JWT_SECRET", "dev_secret_change_me"),
		PaymentProvider:  strings.ToLower(getEnv("PAYMENT_PROVIDER", "test")),
		StripeSecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
		Currency:         strings.ToUpper(getEnv("STRIPE_CURRENCY", "EUR")),
		SMTPHost:         os.Getenv("SMTP_HOST"),
		SMTPPort:         getEnv("SMTP_PORT", "587"),
		SMTPUser:         os.Getenv("SMTP_USER"),
		SMTPPass:         os.Getenv("SMTP_PASS"),
		MailFrom:         getEnv("EMAIL_FROM", "Elitearn <no-reply@elitearn.dev>"),
		WorkerBatch:      envInt("EMAIL_WORKER_BATCH", 10),
		WorkerInterval:   envDuration("EMAIL_WORKER_INTERVAL", 4*time.Second),
		DownloadTokenTTL: envDuration("DOWNLOAD_TOKEN_TTL", 7*24*time.Hour),
		UploadsDir:       getEnv("UPLOADS_DIR", "uploads"),
		ConsulAddr:       os.Getenv("CONSUL_HTTP_ADDR"),
		ServiceName:      getEnv("SERVICE_NAME", "elitearn"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = fmt.Sprintf("http://localhost:%d", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.PaymentProvider == "stripe" && cfg.StripeSecretKey == "" {
		return nil, fmt.Errorf("PAYMENT_PROVIDER=stripe but STRIPE_SECRET_KEY is not set")
	}
	if cfg.WorkerBatch < 1 {
		cfg.WorkerBatch = 1
	}
	if cfg.WorkerBatch > 50 {
		cfg.WorkerBatch = 50
	}
	if cfg.WorkerInterval < time.Second {
		cfg.WorkerInterval = time.Second
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
