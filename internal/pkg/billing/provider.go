package billing

import (
	"context"
	"time"
)

// Provider is the narrow view of the external payment/subscription service.
// Implementations must pass provider errors through unchanged so callers can
// classify and describe them.
type Provider interface {
	CreatePaymentMethod(ctx context.Context, methodType, cardToken string) (string, error)
	GetPrice(ctx context.Context, priceID string) (*Price, error)
	CreateCustomer(ctx context.Context, email, paymentMethodID string) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	CreateAuthorization(ctx context.Context, in AuthorizationInput) (*Authorization, error)
	GetAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)
	CaptureAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)
	CancelAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)

	CreateSchedule(ctx context.Context, in ScheduleInput) (*Schedule, error)
	ListSchedules(ctx context.Context, customerID string) ([]*Schedule, error)
	UpdateSubscriptionPrice(ctx context.Context, in SubscriptionPriceUpdate) error
}

// AuthorizationInput describes a manually captured, immediately confirmed
// authorization.
type AuthorizationInput struct {
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
	IdempotencyKey  string
}

// SchedulePhase is one entry of a subscription schedule.
type SchedulePhase struct {
	PriceID              string            `json:"price"`
	Trial                bool              `json:"trial,omitempty"`
	EndDate              *time.Time        `json:"endDate,omitempty"`
	Iterations           int64             `json:"iterations,omitempty"`
	DefaultPaymentMethod string            `json:"defaultPaymentMethod,omitempty"`
	BillingCycleAnchor   string            `json:"billingCycleAnchor,omitempty"`
	CollectionMethod     string            `json:"collectionMethod,omitempty"`
	ProrationBehavior    string            `json:"prorationBehavior,omitempty"`
	Metadata             map[string]string `json:"metadata"`
}

// ScheduleInput is the request to create a subscription schedule.
type ScheduleInput struct {
	CustomerID  string
	StartDate   time.Time
	EndBehavior string
	Metadata    map[string]string
	Phases      []SchedulePhase
}

// Schedule is a subscription schedule as reported by the provider.
type Schedule struct {
	ID             string            `json:"id"`
	CustomerID     string            `json:"customer"`
	Status         string            `json:"status"`
	SubscriptionID string            `json:"subscription,omitempty"`
	EndBehavior    string            `json:"endBehavior"`
	Metadata       map[string]string `json:"metadata"`
	Phases         []SchedulePhase   `json:"phases"`
}

// SubscriptionPriceUpdate swaps the price of a live subscription.
type SubscriptionPriceUpdate struct {
	SubscriptionID string
	ItemID         string
	PriceID        string
	Metadata       map[string]string
}
