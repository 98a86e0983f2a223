package constants

// Route constants
const (
	HealthRoute              = "/health"
	ConfigRoute              = "/config"
	CreateSubscriptionRoute  = "/create-subscription"
	CreatePaymentIntentRoute = "/create-payment-intent"
	CheckPaymentStatusRoute  = "/check-payment-status"
	WebhookRoute             = "/webhook"
	MetricsRoute             = "/metrics"
	DocsRoute                = "/docs/api/"
)
