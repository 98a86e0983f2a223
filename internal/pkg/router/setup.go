package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/HoldFox/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Options carries the handlers and settings the routers need.
type Options struct {
	Billing         *controllers.BillingController
	MetricsUser     string
	MetricsPassword string

	// LimiterStorage shares rate limits between instances. Nil keeps them
	// in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, opts Options) {
	// The webhook route is installed first so it is matched before any
	// middleware of the other groups touches the raw body.
	setup(app, NewWebhookRouter(opts), NewHttpRouter(opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
