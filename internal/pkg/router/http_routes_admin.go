package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/HoldFox/internal/pkg/constants"
)

// registerAdminRoutes exposes operational metrics. Without configured
// credentials the routes are not installed at all.
func (h HttpRouter) registerAdminRoutes(app *fiber.App) {
	if h.opts.MetricsUser == "" || h.opts.MetricsPassword == "" {
		return
	}

	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.opts.MetricsUser: h.opts.MetricsPassword,
		},
	})
	metrics := app.Group(constants.MetricsRoute, auth)
	metrics.Get("/webhooks", h.opts.Billing.HandleWebhookMetrics)
	metrics.Get("/", monitor.New())
}
