package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner.
type Config struct {
	Env         string
	DatabaseURL string
	HTTPAddr    string
	AppURL      string
	CronSecret  string

	TelegramToken string

	RolloverSchedule     string
	ReminderSchedule     string
	WeeklyReportSchedule string

	Stripe  StripeConfig
	OpenAI  OpenAIConfig
	SMTP    SMTPConfig
	Twilio  TwilioConfig
	WebPush WebPushConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	PriceMonthly  string
	PriceYearly   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

type WebPushConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Load reads configuration from environment variables, optionally layered over
// a YAML file named by CONFIG_FILE, with sane defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := strings.TrimSpace(v.GetString("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %q", path)
		}
	}

	cfg := Config{
		Env:                  str(v, "APP_ENV"),
		DatabaseURL:          str(v, "DATABASE_URL"),
		HTTPAddr:             str(v, "HTTP_ADDR"),
		AppURL:               strings.TrimRight(str(v, "APP_URL"), "/"),
		CronSecret:           str(v, "CRON_SECRET"),
		TelegramToken:        str(v, "TELEGRAM_TOKEN"),
		RolloverSchedule:     str(v, "ROLLOVER_SCHEDULE"),
		ReminderSchedule:     str(v, "REMINDER_SCHEDULE"),
		WeeklyReportSchedule: str(v, "WEEKLY_REPORT_SCHEDULE"),
		Stripe: StripeConfig{
			SecretKey:     str(v, "STRIPE_SECRET_KEY"),
			WebhookSecret: str(v, "STRIPE_WEBHOOK_SECRET"),
			PriceMonthly:  str(v, "STRIPE_PRICE_MONTHLY"),
			PriceYearly:   str(v, "STRIPE_PRICE_YEARLY"),
		},
		OpenAI: OpenAIConfig{
			APIKey: str(v, "OPENAI_API_KEY"),
			Model:  str(v, "OPENAI_MODEL"),
		},
		SMTP: SMTPConfig{
			Host:     str(v, "SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: str(v, "SMTP_USERNAME"),
			Password: str(v, "SMTP_PASSWORD"),
			From:     str(v, "SMTP_FROM"),
		},
		Twilio: TwilioConfig{
			AccountSID: str(v, "TWILIO_ACCOUNT_SID"),
			AuthToken:  str(v, "TWILIO_AUTH_TOKEN"),
			FromNumber: str(v, "TWILIO_FROM_NUMBER"),
		},
		WebPush: WebPushConfig{
			PublicKey:  str(v, "VAPID_PUBLIC_KEY"),
			PrivateKey: str(v, "VAPID_PRIVATE_KEY"),
			Subject:    str(v, "VAPID_SUBJECT"),
		},
	}

	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	return cfg, nil
}

// Validate checks settings required to run the long-lived server.
func (c Config) Validate() error {
	if c.CronSecret == "" {
		return errors.New("CRON_SECRET is required")
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
	}
	return nil
}

// Development reports whether verbose, human-readable logging is wanted.
func (c Config) Development() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("DATABASE_URL", "daily_planner.db")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_URL", "http://localhost:8080")
	// Quarter-hour triggers reach the midnight window of :30 and :45 offset zones.
	v.SetDefault("ROLLOVER_SCHEDULE", "0 0,15,30,45 * * * *")
	v.SetDefault("REMINDER_SCHEDULE", "0 * * * * *")
	v.SetDefault("WEEKLY_REPORT_SCHEDULE", "0 0 9 * * MON")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("VAPID_SUBJECT", "mailto:admin@localhost")
}

func str(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}
