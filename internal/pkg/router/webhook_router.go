package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/HoldFox/internal/pkg/constants"
)

// WebhookRouter installs the provider callback. It has no rate limit: the
// provider retries on 429 and a limiter would only delay captures.
type WebhookRouter struct {
	opts Options
}

func (w WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.WebhookRoute, w.opts.Billing.HandleWebhook)
}

func NewWebhookRouter(opts Options) *WebhookRouter {
	return &WebhookRouter{opts: opts}
}
