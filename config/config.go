package config

import (
	"github.com/noyaclicks-jpg/crmhost/internal/logger"
	"github.com/noyaclicks-jpg/crmhost/internal/tracing"
)

type Config struct {
	AppConfig      *AppConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
	DatabaseConfig *DatabaseConfig
	NetlifyConfig  *NetlifyConfig
	ForwardEmail   *ForwardEmailConfig
	ImapConfig     *ImapConfig
	GatewayConfig  *GatewayConfig
}

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"11000"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type DatabaseConfig struct {
	Host            string `env:"CRMHOST_POSTGRES_HOST,required"`
	Port            string `env:"CRMHOST_POSTGRES_PORT,required"`
	User            string `env:"CRMHOST_POSTGRES_USER,required"`
	DBName          string `env:"CRMHOST_POSTGRES_DB_NAME,required"`
	Password        string `env:"CRMHOST_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"CRMHOST_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"CRMHOST_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"CRMHOST_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"CRMHOST_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"CRMHOST_POSTGRES_SSL_MODE" envDefault:"disable"`
}

// NetlifyConfig holds the fixed base URL of the DNS-hosting provider. API tokens
// are org-scoped and live in the provider_credentials table, never here.
type NetlifyConfig struct {
	URL string `env:"NETLIFY_URL" envDefault:"https://api.netlify.com/api/v1"`
}

type ForwardEmailConfig struct {
	URL string `env:"FORWARDEMAIL_URL" envDefault:"https://api.forwardemail.net/v1"`
}

type ImapConfig struct {
	Host string `env:"IMAP_HOST" envDefault:"imap.zoho.com"`
	Port int    `env:"IMAP_PORT" envDefault:"993"`
}

// GatewayConfig is the single place outbound retry/timeout policy is configured.
type GatewayConfig struct {
	MaxRetries     int `env:"PROVIDER_MAX_RETRIES" envDefault:"3"`
	RetryDelayMs   int `env:"PROVIDER_RETRY_DELAY_MS" envDefault:"1000"`
	TimeoutSeconds int `env:"PROVIDER_TIMEOUT_SECONDS" envDefault:"30"`
}
