package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns    int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns    int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLifetime int    `env:"DB_CONN_MAX_LIFETIME_SEC,default=3600"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	ShutdownTimeoutMS int    `env:"SHUTDOWN_TIMEOUT_MS,default=15000"`

	RateLimitPerSec int `env:"RATE_LIMIT_PER_SEC,default=100"`

	RetryMaxAttempts    int     `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryInitialDelayMS int     `env:"RETRY_INITIAL_DELAY_MS,default=1000"`
	RetryMultiplier     float64 `env:"RETRY_MULTIPLIER,default=2.0"`
	RetryMaxDelayMS     int     `env:"RETRY_MAX_DELAY_MS,default=10000"`

	RecoveryIntervalSec int `env:"RECOVERY_INTERVAL_SEC,default=300"`
	RecoveryBatchLimit  int `env:"RECOVERY_BATCH_LIMIT,default=100"`
	RecoveryConcurrency int `env:"RECOVERY_CONCURRENCY,default=4"`
	ReplayCooldownSec   int `env:"REPLAY_COOLDOWN_SEC,default=900"`

	AsyncCoreWorkers   int `env:"ASYNC_CORE_WORKERS,default=10"`
	AsyncMaxWorkers    int `env:"ASYNC_MAX_WORKERS,default=25"`
	AsyncQueueCapacity int `env:"ASYNC_QUEUE_CAPACITY,default=100"`

	StatsBuffer int `env:"STATS_BUFFER,default=1024"`

	AWSRegion            string `env:"AWS_REGION,default=us-east-1"`
	AWSEndpointURL       string `env:"AWS_ENDPOINT_URL"`
	SESFromEmail         string `env:"SES_FROM_EMAIL"`
	EmailProviderEnabled bool   `env:"EMAIL_PROVIDER_ENABLED,default=false"`
	SMSProviderEnabled   bool   `env:"SMS_PROVIDER_ENABLED,default=false"`
	PushWebhookURL       string `env:"PUSH_WEBHOOK_URL"`
	WhatsAppWebhookURL   string `env:"WHATSAPP_WEBHOOK_URL"`
	LogSenderFallback    bool   `env:"LOG_SENDER_FALLBACK,default=false"`

	EmailTimeoutMS    int `env:"EMAIL_TIMEOUT_MS,default=30000"`
	SMSTimeoutMS      int `env:"SMS_TIMEOUT_MS,default=30000"`
	PushTimeoutMS     int `env:"PUSH_TIMEOUT_MS,default=30000"`
	WhatsAppTimeoutMS int `env:"WHATSAPP_TIMEOUT_MS,default=30000"`
	InAppTimeoutMS    int `env:"IN_APP_TIMEOUT_MS,default=30000"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations that would fail later during wiring.
func (c *Config) Validate() error {
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryInitialDelayMS < 0 || c.RetryMaxDelayMS < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be >= 1, got %v", c.RetryMultiplier)
	}
	if c.AsyncMaxWorkers < c.AsyncCoreWorkers {
		return fmt.Errorf("ASYNC_MAX_WORKERS (%d) must be >= ASYNC_CORE_WORKERS (%d)", c.AsyncMaxWorkers, c.AsyncCoreWorkers)
	}
	if c.EmailProviderEnabled && strings.TrimSpace(c.SESFromEmail) == "" {
		return fmt.Errorf("SES_FROM_EMAIL is required when EMAIL_PROVIDER_ENABLED=true")
	}
	return nil
}

func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.RetryMaxAttempts,
		InitialDelay: millis(c.RetryInitialDelayMS),
		Multiplier:   c.RetryMultiplier,
		MaxDelay:     millis(c.RetryMaxDelayMS),
	}
}

// SendTimeout returns the per-attempt provider timeout for channel.
func (c *Config) SendTimeout(channel domain.Channel) time.Duration {
	switch channel {
	case domain.ChannelEmail:
		return millis(c.EmailTimeoutMS)
	case domain.ChannelSMS:
		return millis(c.SMSTimeoutMS)
	case domain.ChannelPush:
		return millis(c.PushTimeoutMS)
	case domain.ChannelWhatsApp:
		return millis(c.WhatsAppTimeoutMS)
	case domain.ChannelInApp:
		return millis(c.InAppTimeoutMS)
	}
	return 0
}

func (c *Config) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSec) * time.Second
}

func (c *Config) ReplayCooldown() time.Duration {
	return time.Duration(c.ReplayCooldownSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return millis(c.ShutdownTimeoutMS)
}

func (c *Config) DBConnLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetime) * time.Second
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
