package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/HoldFox/internal/pkg/billing"
	"github.com/ManuelReschke/HoldFox/internal/pkg/env"
)

// Config is the validated process configuration. Load fails on anything a
// request would otherwise trip over later.
type Config struct {
	AppEnv string `env:"APP_ENV"`
	Host   string `env:"APP_HOST" validate:"required"`
	Port   string `env:"APP_PORT" validate:"required,numeric"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY" validate:"required"`
	StripePublicKey string `env:"STRIPE_PUBLIC_KEY"`
	WebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	TrialPriceID    string `env:"TRIAL_STRIPE_PRICE_ID" validate:"required"`
	PaidPriceID     string `env:"PAID_STRIPE_PRICE_ID" validate:"required"`

	PhaseTags billing.PhaseTags `validate:"-"`

	CacheHost     string `env:"CACHE_HOST" validate:"required"`
	CachePort     string `env:"CACHE_PORT" validate:"required,numeric"`
	CachePassword string `env:"CACHE_PASSWORD"`
	CacheDB       int    `env:"CACHE_DB" validate:"gte=0"`

	// LimiterDB holds the shared rate limiter counters, apart from the cache.
	LimiterDB int `env:"CACHE_LIMITER_DB" validate:"gte=0"`

	LogDir string `env:"LOG_DIR" validate:"required"`

	MetricsUser     string `env:"METRICS_USER"`
	MetricsPassword string `env:"METRICS_PASSWORD" validate:"required_with=MetricsUser"`

	OpenAPIFile string `env:"OPENAPI_FILE"`
}

func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// Load reads the configuration from the loaded .env map and the process
// environment.
func Load() (*Config, error) {
	cacheDB, err := strconv.Atoi(env.GetEnv("CACHE_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_DB: %w", err)
	}

	limiterDB, err := strconv.Atoi(env.GetEnv("CACHE_LIMITER_DB", "1"))
	if err != nil {
		return nil, fmt.Errorf("CACHE_LIMITER_DB: %w", err)
	}

	cfg := &Config{
		AppEnv:          env.GetEnv("APP_ENV", "prod"),
		Host:            env.GetEnv("APP_HOST", "0.0.0.0"),
		Port:            env.GetEnv("APP_PORT", env.GetEnv("SERVER_PORT", "3000")),
		StripeSecretKey: strings.TrimSpace(env.GetEnv("STRIPE_SECRET_KEY", "")),
		StripePublicKey: strings.TrimSpace(env.GetEnv("STRIPE_PUBLIC_KEY", "")),
		WebhookSecret:   strings.TrimSpace(env.GetEnv("STRIPE_WEBHOOK_SECRET", "")),
		TrialPriceID:    strings.TrimSpace(env.GetEnv("TRIAL_STRIPE_PRICE_ID", "")),
		PaidPriceID:     strings.TrimSpace(env.GetEnv("PAID_STRIPE_PRICE_ID", "")),
		CacheHost:       env.GetEnv("CACHE_HOST", "localhost"),
		CachePort:       env.GetEnv("CACHE_PORT", "6379"),
		CachePassword:   env.GetEnv("CACHE_PASSWORD", ""),
		CacheDB:         cacheDB,
		LimiterDB:       limiterDB,
		LogDir:          env.GetEnv("LOG_DIR", "./logs"),
		MetricsUser:     env.GetEnv("METRICS_USER", ""),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
		OpenAPIFile:     env.GetEnv("OPENAPI_FILE", "./public/docs/v1/openapi.yml"),
	}

	tags, err := billing.ParsePhaseTags(
		env.GetEnv("PHASE_STATUS_TRIAL", "trial"),
		env.GetEnv("PHASE_STATUS_HELD", "held"),
		env.GetEnv("PHASE_STATUS_PAID", "paid"),
	)
	if err != nil {
		return nil, err
	}
	cfg.PhaseTags = tags

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	err := v.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	sort.Strings(problems)
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
}
