package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const defaultPaymentMethodType = "card"

// AuthorizationRequest is the input of the authorization flow.
type AuthorizationRequest struct {
	Type      string
	CardToken string
	Email     string
	PriceID   string
	Metadata  map[string]string
}

// AuthorizationResult is a held authorization and the customer that owns it.
type AuthorizationResult struct {
	PaymentMethodID string
	Customer        *Customer
	Authorization   *Authorization
}

// RequiresAction reports whether the customer must authenticate before the
// flow can continue.
func (r *AuthorizationResult) RequiresAction() bool {
	return r != nil && r.Authorization != nil && r.Authorization.Status == StatusRequiresAction
}

// Authorizer creates a payment method, a customer and a manually captured
// authorization for a single attempt.
type Authorizer struct {
	provider Provider
	sink     Sink
	newKey   func() string
}

func NewAuthorizer(provider Provider, sink Sink) *Authorizer {
	if sink == nil {
		sink = discardSink{}
	}
	return &Authorizer{
		provider: provider,
		sink:     sink,
		newKey:   func() string { return uuid.NewString() },
	}
}

// Authorize runs the flow up to the held authorization. A result whose
// RequiresAction is true carries the client secret and must not be scheduled.
func (a *Authorizer) Authorize(ctx context.Context, req AuthorizationRequest) (*AuthorizationResult, error) {
	if err := validateAuthorizationRequest(req); err != nil {
		return nil, err
	}
	methodType := strings.TrimSpace(req.Type)
	if methodType == "" {
		methodType = defaultPaymentMethodType
	}

	paymentMethodID, err := a.provider.CreatePaymentMethod(ctx, methodType, req.CardToken)
	if err != nil {
		a.sink.Append(fmt.Sprintf("Error creating payment method: %s", DescribeProviderError(err)))
		return nil, &ProviderError{Kind: ErrInstrumentCreationFailed, Cause: err}
	}

	price, err := a.provider.GetPrice(ctx, req.PriceID)
	if err != nil {
		a.sink.Append(fmt.Sprintf("Error retrieving price %s: %s", req.PriceID, DescribeProviderError(err)))
		return nil, &ProviderError{Kind: ErrPriceLookupFailed, Cause: err}
	}

	customer, err := a.provider.CreateCustomer(ctx, req.Email, paymentMethodID)
	if err != nil {
		a.sink.Append(fmt.Sprintf("Error creating customer: %s", DescribeProviderError(err)))
		return nil, &ProviderError{Kind: ErrCustomerCreationFailed, Cause: err}
	}

	auth, err := a.provider.CreateAuthorization(ctx, AuthorizationInput{
		Amount:          price.UnitAmount,
		Currency:        price.Currency,
		CustomerID:      customer.ID,
		PaymentMethodID: paymentMethodID,
		Metadata:        req.Metadata,
		IdempotencyKey:  a.newKey(),
	})
	if err != nil {
		a.sink.Append(fmt.Sprintf("Error creating payment authorization for customer %s: %s", customer.ID, DescribeProviderError(err)))
		return nil, &ProviderError{Kind: ErrAuthorizationFailed, Cause: err}
	}

	result := &AuthorizationResult{
		PaymentMethodID: paymentMethodID,
		Customer:        customer,
		Authorization:   auth,
	}
	switch auth.Status {
	case StatusRequiresAction, StatusRequiresCapture:
		return result, nil
	default:
		a.sink.Append(fmt.Sprintf("Payment authorization %s for customer %s ended in status %s", auth.ID, customer.ID, auth.Status))
		return result, fmt.Errorf("%w: authorization %s is %s", ErrAuthorizationFailed, auth.ID, auth.Status)
	}
}

func validateAuthorizationRequest(req AuthorizationRequest) error {
	var missing []string
	if strings.TrimSpace(req.Email) == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(req.CardToken) == "" {
		missing = append(missing, "cardTokenId")
	}
	if strings.TrimSpace(req.PriceID) == "" {
		missing = append(missing, "priceId")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}
