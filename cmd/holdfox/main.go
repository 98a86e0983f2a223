package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/HoldFox/app/controllers"
	"github.com/ManuelReschke/HoldFox/internal/pkg/billing"
	"github.com/ManuelReschke/HoldFox/internal/pkg/cache"
	"github.com/ManuelReschke/HoldFox/internal/pkg/config"
	"github.com/ManuelReschke/HoldFox/internal/pkg/constants"
	"github.com/ManuelReschke/HoldFox/internal/pkg/env"
	"github.com/ManuelReschke/HoldFox/internal/pkg/logsink"
	"github.com/ManuelReschke/HoldFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/HoldFox/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	app, cleanup := NewApplication(cfg)
	err = app.Listen(cfg.Addr())
	cleanup()
	log.Fatal(err)
}

// NewApplication wires the billing stack into a fiber app. The returned
// function releases the cache connection and the log file.
func NewApplication(cfg *config.Config) (*fiber.App, func()) {
	kv := cache.New(cache.Options{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	cacheErr := kv.Ping(pingCtx)
	cancel()

	// The limiter storage connects eagerly, so it is only used when the
	// cache answered.
	var limiterStorage fiber.Storage
	if cacheErr != nil {
		fiberlog.Warnf("Cache at %s:%s not reachable yet, rate limits stay in memory: %v", cfg.CacheHost, cfg.CachePort, cacheErr)
	} else if port, err := strconv.Atoi(cfg.CachePort); err == nil {
		limiterStorage = redisstorage.New(redisstorage.Config{
			Host:     cfg.CacheHost,
			Port:     port,
			Password: cfg.CachePassword,
			Database: cfg.LimiterDB,
			Reset:    false,
		})
	}

	sink := logsink.New(logsink.Options{Dir: cfg.LogDir, Mirror: cfg.IsDev()})
	provider := billing.NewStripeProvider(cfg.StripeSecretKey)
	outcomes := billing.NewOutcomeStore(kv)

	svc := billing.NewService(billing.ServiceOptions{
		Provider:     provider,
		Tags:         cfg.PhaseTags,
		Sink:         sink,
		Outcomes:     outcomes,
		TrialPriceID: cfg.TrialPriceID,
		PaidPriceID:  cfg.PaidPriceID,
	})
	dispatcher := billing.NewDispatcher(billing.DispatcherOptions{
		WebhookSecret: cfg.WebhookSecret,
		Provider:      provider,
		Tags:          cfg.PhaseTags,
		Sink:          sink,
		Ledger:        kv,
		Outcomes:      outcomes,
	})

	billingController := controllers.NewBillingController(controllers.BillingControllerOptions{
		Service:    svc,
		Dispatcher: dispatcher,
		Sink:       sink,
		Counter:    counter.New(kv.Client()),
		Cache:      kv,
		SinkStats:  sink,
		Public: controllers.PublicConfig{
			PublishableKey: cfg.StripePublicKey,
			TrialPriceID:   cfg.TrialPriceID,
			PaidPriceID:    cfg.PaidPriceID,
		},
	})

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if _, err := os.Stat(cfg.OpenAPIFile); err == nil {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsRoute,
			FilePath: cfg.OpenAPIFile,
			Path:     "v1",
		}))
	} else {
		fiberlog.Warnf("OpenAPI file %s not found, docs disabled", cfg.OpenAPIFile)
	}

	// ROUTER
	router.InstallRouter(app, router.Options{
		Billing:         billingController,
		MetricsUser:     cfg.MetricsUser,
		MetricsPassword: cfg.MetricsPassword,
		LimiterStorage:  limiterStorage,
	})

	cleanup := func() {
		if limiterStorage != nil {
			_ = limiterStorage.Close()
		}
		if err := sink.Close(); err != nil {
			fiberlog.Warnf("Closing log sink: %v", err)
		}
		if err := kv.Close(); err != nil {
			fiberlog.Warnf("Closing cache: %v", err)
		}
	}
	return app, cleanup
}
