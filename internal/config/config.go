// Package config defines the global configuration for the PomoLink platform.
// Configuration is loaded once at process initialization and immutable
// thereafter, following 12-Factor principles: OS environment wins over the
// optional .env file, and any missing required value fails startup.
package config

import (
	"time"

	"pomolink/internal/types"
)

// SecretString aliases the redacted secret type used for sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pomolink-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Billing  BillingConfig
	Identity IdentityConfig
	Plans    PlanConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	APIExternalURL string        `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
	AppURL         string        `envconfig:"APP_URL" validate:"required,url"`
	ReadTimeout    time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	MirrorQueueURL string `envconfig:"SQS_MIRROR_QUEUE" validate:"required,url"`
	ArchiveBucket  string `envconfig:"ARCHIVE_BUCKET"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BillingConfig holds Stripe credentials and price mappings.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	PriceBasic          string       `envconfig:"STRIPE_PRICE_BASIC" validate:"required"`
	PricePro            string       `envconfig:"STRIPE_PRICE_PRO" validate:"required"`
}

// IdentityConfig holds the identity provider integration settings.
type IdentityConfig struct {
	IssuerURL     string       `envconfig:"IDENTITY_ISSUER_URL" validate:"required,url"`
	APIBaseURL    string       `envconfig:"IDENTITY_API_URL" default:"https://api.clerk.com"`
	APIKey        SecretString `envconfig:"IDENTITY_API_KEY" validate:"required"`
	WebhookSecret SecretString `envconfig:"IDENTITY_WEBHOOK_SECRET" validate:"required"`
}

// PlanConfig tunes background jobs tied to plan limits.
type PlanConfig struct {
	OutboxDrainInterval time.Duration `envconfig:"OUTBOX_DRAIN_INTERVAL" default:"5s"`
	SweepHour           int           `envconfig:"RETENTION_SWEEP_HOUR" default:"4" validate:"min=0,max=23"`
}
