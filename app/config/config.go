package config

import (
	"os"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs     LogConfig
	DB       PostgresConfig
	Stripe   StripeConfig
	Redis    RedisConfig
	QueueURL string
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
}

// StripeConfig holds the provider credentials and the price ids the plan
// catalog maps to internal plans. Price ids come from the Stripe dashboard
// and must stay in sync with the catalog; an id the catalog does not know
// makes webhook processing fail loudly rather than downgrade anyone.
type StripeConfig struct {
	SecretKey                string
	WebhookSecret            string
	PriceIDProMonthly        string
	PriceIDEnterpriseMonthly string
	FrontendURL              string
}

type RedisConfig struct {
	Addr     string
	Password string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Name:     os.Getenv("POSTGRES_DB"),
		},
		Stripe: StripeConfig{
			SecretKey:                os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:            os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDProMonthly:        os.Getenv("STRIPE_PRO_PRICE_ID"),
			PriceIDEnterpriseMonthly: os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
			FrontendURL:              os.Getenv("FRONTEND_URL"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	return cfg, nil
}
