package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/HoldFox/app/models"
	"github.com/ManuelReschke/HoldFox/internal/pkg/billing"
)

// ============================================================================
// BILLING CONTROLLER
// ============================================================================

// BillingService is the synchronous part of the billing package.
type BillingService interface {
	CreateSubscription(ctx context.Context, req billing.SubscriptionRequest) (*billing.SubscriptionResult, error)
	CreatePaymentIntent(ctx context.Context, req billing.HoldRequest) (*billing.HoldResponse, error)
	CheckPaymentStatus(ctx context.Context, contactID string) (*billing.CachedOutcome, error)
}

// WebhookDispatcher verifies and applies lifecycle events.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, payload []byte, signature string) billing.Result
}

// EventCounter records webhook outcomes.
type EventCounter interface {
	AddWebhookEvent(ctx context.Context, eventType, action string) error
	WebhookEvents(ctx context.Context) (map[string]int64, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SinkStats exposes the log sink's failed write count.
type SinkStats interface {
	Errors() int64
}

// PublicConfig is what a card-tokenizing client needs to know.
type PublicConfig struct {
	PublishableKey string `json:"publishableKey"`
	TrialPriceID   string `json:"trialPriceId"`
	PaidPriceID    string `json:"paidPriceId"`
}

// BillingControllerOptions wires a BillingController.
type BillingControllerOptions struct {
	Service    BillingService
	Dispatcher WebhookDispatcher
	Sink       billing.Sink
	Counter    EventCounter
	Cache      Pinger
	SinkStats  SinkStats
	Public     PublicConfig
}

// BillingController handles the subscription, hold and webhook endpoints.
type BillingController struct {
	svc        BillingService
	dispatcher WebhookDispatcher
	sink       billing.Sink
	counter    EventCounter
	cache      Pinger
	sinkStats  SinkStats
	public     PublicConfig
}

// NewBillingController creates a new billing controller
func NewBillingController(opts BillingControllerOptions) *BillingController {
	return &BillingController{
		svc:        opts.Service,
		dispatcher: opts.Dispatcher,
		sink:       opts.Sink,
		counter:    opts.Counter,
		cache:      opts.Cache,
		sinkStats:  opts.SinkStats,
		public:     opts.Public,
	}
}

// HandleCreateSubscription handles POST /create-subscription.
func (bc *BillingController) HandleCreateSubscription(c *fiber.Ctx) error {
	var req models.CreateSubscriptionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.CreateSubscriptionResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.CreateSubscriptionResponse{Error: billing.PublicMessage(err)})
	}

	result, err := bc.svc.CreateSubscription(c.UserContext(), req.ToBilling())
	if err != nil {
		msg := billing.PublicMessage(err)
		bc.appendLog(fmt.Sprintf("Error in /create-subscription: %s", msg))
		return c.Status(statusForFlowError(err)).JSON(models.CreateSubscriptionResponse{Error: msg})
	}
	if result.RequiresAction {
		return c.Status(fiber.StatusOK).JSON(models.CreateSubscriptionResponse{
			RequiresAction: true,
			ClientSecret:   result.ClientSecret,
		})
	}
	return c.Status(fiber.StatusOK).JSON(models.CreateSubscriptionResponse{
		Success:              true,
		SubscriptionSchedule: result.Schedule,
	})
}

// HandleCreatePaymentIntent handles POST /create-payment-intent.
func (bc *BillingController) HandleCreatePaymentIntent(c *fiber.Ctx) error {
	var req models.CreatePaymentIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.CreatePaymentIntentResponse{Error: "invalid request body"})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.CreatePaymentIntentResponse{Error: billing.PublicMessage(err)})
	}

	res, err := bc.svc.CreatePaymentIntent(c.UserContext(), req.ToBilling())
	if err != nil {
		msg := billing.PublicMessage(err)
		bc.appendLog(fmt.Sprintf("Error in /create-payment-intent: %s", msg))
		return c.Status(statusForFlowError(err)).JSON(models.CreatePaymentIntentResponse{Error: msg})
	}
	return c.Status(fiber.StatusOK).JSON(models.CreatePaymentIntentResponse{
		Success:         !res.RequiresAction,
		PaymentIntentID: res.Authorization.ID,
		Status:          string(res.Authorization.Status),
		RequiresAction:  res.RequiresAction,
		ClientSecret:    res.ClientSecret,
	})
}

// HandleCheckPaymentStatus handles GET /check-payment-status?contactId=.
func (bc *BillingController) HandleCheckPaymentStatus(c *fiber.Ctx) error {
	contactID := strings.TrimSpace(c.Query("contactId"))
	if contactID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.PaymentStatusResponse{Error: "contactId is required"})
	}

	outcome, err := bc.svc.CheckPaymentStatus(c.UserContext(), contactID)
	switch {
	case errors.Is(err, billing.ErrOutcomeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(models.PaymentStatusResponse{Error: err.Error()})
	case errors.Is(err, billing.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(models.PaymentStatusResponse{Error: billing.PublicMessage(err)})
	case err != nil:
		fiberlog.Errorf("Error reading payment status for contact %s: %v", contactID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(models.PaymentStatusResponse{Error: "payment status unavailable"})
	}
	return c.Status(fiber.StatusOK).JSON(models.PaymentStatusResponse{Success: true, CachedOutcome: outcome})
}

// HandleWebhook handles POST /webhook. The raw body is needed for the
// signature check, so it is copied before fasthttp reuses the buffer.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)
	signature := firstHeaderValue(c, "Stripe-Signature", "Signature")

	res := bc.dispatcher.Dispatch(c.UserContext(), rawBody, signature)
	if bc.counter != nil {
		if err := bc.counter.AddWebhookEvent(c.UserContext(), res.EventType, res.Action); err != nil {
			fiberlog.Warnf("Could not count webhook event %s: %v", res.EventID, err)
		}
	}

	if res.Err != nil {
		fiberlog.Warnf("[Webhook] event=%s type=%s status=%d: %s", res.EventID, res.EventType, res.Status, billing.PublicMessage(res.Err))
		return c.Status(res.Status).JSON(fiber.Map{"received": false, "error": billing.PublicMessage(res.Err)})
	}
	return c.Status(res.Status).JSON(fiber.Map{
		"received":  true,
		"action":    res.Action,
		"duplicate": res.Duplicate(),
	})
}

// HandleHealth handles GET /health.
func (bc *BillingController) HandleHealth(c *fiber.Ctx) error {
	if bc.cache != nil {
		if err := bc.cache.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"ok": false, "cache": "unreachable"})
		}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandlePublicConfig handles GET /config.
func (bc *BillingController) HandlePublicConfig(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(bc.public)
}

// HandleWebhookMetrics handles GET /metrics/webhooks.
func (bc *BillingController) HandleWebhookMetrics(c *fiber.Ctx) error {
	out := fiber.Map{}
	if bc.counter != nil {
		events, err := bc.counter.WebhookEvents(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters unavailable"})
		}
		out["webhookEvents"] = events
	}
	if bc.sinkStats != nil {
		out["logWriteErrors"] = bc.sinkStats.Errors()
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

func (bc *BillingController) appendLog(line string) {
	if bc.sink != nil {
		bc.sink.Append(line)
	}
}

func statusForFlowError(err error) int {
	if errors.Is(err, billing.ErrValidation) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusBadGateway
}

func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
