package config

import (
	"time"

	"github.com/spf13/viper"
)

// The API and the workers run as pods with their settings injected as
// environment variables. AWS credentials come from the default chain
// outside local development.

type Config struct {
	DBHost                string        `mapstructure:"DB_HOST"`
	DBPort                string        `mapstructure:"DB_PORT"`
	DBUser                string        `mapstructure:"DB_USER"`
	DBPassword            string        `mapstructure:"DB_PASSWORD"`
	DBName                string        `mapstructure:"DB_NAME"`
	ServerPort            string        `mapstructure:"SERVER_PORT"`
	IsLocalDev            bool          `mapstructure:"LOCAL_DEV"`
	LogLevel              string        `mapstructure:"LOG_LEVEL"`
	OtelExporter          string        `mapstructure:"OTEL_EXPORTER"`
	OtelEndpoint          string        `mapstructure:"OTEL_ENDPOINT"`
	AWSRegion             string        `mapstructure:"AWS_REGION"`
	AWSEndpoint           string        `mapstructure:"AWS_ENDPOINT"`
	PayrollSQSQueueURL    string        `mapstructure:"PAYROLL_SQS_QUEUE_URL"`
	ReceiptSQSQueueURL    string        `mapstructure:"RECEIPT_SQS_QUEUE_URL"`
	EvidenceBucket        string        `mapstructure:"EVIDENCE_BUCKET"`
	EvidenceURLTTL        time.Duration `mapstructure:"EVIDENCE_URL_TTL"`
	ReceiptSender         string        `mapstructure:"RECEIPT_SENDER"`
	LegacyPayrollAPIURL   string        `mapstructure:"LEGACY_PAYROLL_API_URL"`
	Timezone              string        `mapstructure:"TIMEZONE"`
	ProtocolActiveMonths  int           `mapstructure:"PROTOCOL_ACTIVE_MONTHS"`
	ProtocolWideMonths    int           `mapstructure:"PROTOCOL_WIDE_MONTHS"`
	ProtocolMaxCandidates int           `mapstructure:"PROTOCOL_MAX_CANDIDATES"`
	ProtocolMaxHashes     int           `mapstructure:"PROTOCOL_MAX_HASHES"`
	MaxSelfieBytes        int64         `mapstructure:"MAX_SELFIE_BYTES"`
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	v := viper.New()

	v.SetDefault("DB_HOST", "db")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "user")
	v.SetDefault("DB_PASSWORD", "password")
	v.SetDefault("DB_NAME", "ponto_db")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOCAL_DEV", false)
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("OTEL_EXPORTER", "otlp") // "otlp", "stdout" or "none"
	v.SetDefault("OTEL_ENDPOINT", "jaeger:4317")
	v.SetDefault("AWS_REGION", "sa-east-1")
	v.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	v.SetDefault("PAYROLL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/payroll-queue")
	v.SetDefault("RECEIPT_SQS_QUEUE_URL", "http://localstack:4566/000000000000/receipt-queue")
	v.SetDefault("EVIDENCE_BUCKET", "ponto-evidence")
	v.SetDefault("EVIDENCE_URL_TTL", 15*time.Minute)
	v.SetDefault("RECEIPT_SENDER", "ponto@ponto-service.com")
	v.SetDefault("LEGACY_PAYROLL_API_URL", "http://localhost:8081/")
	v.SetDefault("TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("PROTOCOL_ACTIVE_MONTHS", 36)
	v.SetDefault("PROTOCOL_WIDE_MONTHS", 24)
	v.SetDefault("PROTOCOL_MAX_CANDIDATES", 5000)
	v.SetDefault("PROTOCOL_MAX_HASHES", 2_000_000)
	v.SetDefault("MAX_SELFIE_BYTES", 5<<20)

	// Read in environment variables that match the keys.
	v.AutomaticEnv()

	err = v.Unmarshal(&config)
	return
}
