package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/HoldFox/internal/pkg/constants"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	bc := h.opts.Billing

	app.Get(constants.HealthRoute, bc.HandleHealth)
	app.Get(constants.ConfigRoute, bc.HandlePublicConfig)

	// Card flows hit the payment provider; keep clients from hammering them.
	flows := limiter.New(limiter.Config{
		Max:          20,
		Expiration:   1 * time.Minute,
		KeyGenerator: clientIP,
		Storage:      h.opts.LimiterStorage,
	})
	app.Post(constants.CreateSubscriptionRoute, flows, bc.HandleCreateSubscription)
	app.Post(constants.CreatePaymentIntentRoute, flows, bc.HandleCreatePaymentIntent)
	app.Get(constants.CheckPaymentStatusRoute, bc.HandleCheckPaymentStatus)
}
