// Package config defines the process-wide configuration for CreditGate.
// Configuration is loaded once at startup and is immutable thereafter;
// the one value that may rotate at runtime (the webhook secret) is NOT held
// here — it is read per invocation through the sysconfig store.
//
// Values resolve via a priority chain:
//
//	OS Environment (highest) -> Dotenv file -> AWS SSM Parameter Store (lowest)
package config

import (
	"time"

	"creditgate/internal/types"
)

// SecretString is an alias for types.SecretString, used for configuration
// fields that must never appear in logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"creditgate"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Gateway       GatewayConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// DatabaseConfig holds Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// AlertQueueURL is the SQS queue receiving reconciliation alerts.
	// Empty disables alert publishing (alerts degrade to log lines).
	AlertQueueURL string `envconfig:"SQS_RECON_ALERTS"`

	// EndpointURL points AWS clients at LocalStack in development.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// GatewayConfig holds the payment gateway integration settings.
type GatewayConfig struct {
	// Name is the gateway identifier stored on transactions
	// (gateway_usado) and used by fallback resolution.
	Name string `envconfig:"GATEWAY_NAME" default:"abacatepay"`

	// SecretParameter is the sysconfig key (an SSM parameter name in
	// non-local environments) holding the expected webhook secret.
	SecretParameter string `envconfig:"WEBHOOK_SECRET_PARAM" default:"abacatepay_webhook_secret"`
}

// SecurityConfig holds CORS settings for the webhook surface.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CreditGate"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrSSMResolution indicates a failure fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates environment values could not be parsed into
	// their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
