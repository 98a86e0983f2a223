package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeProvider implements Provider on top of the Stripe API.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider using its own API client instead of
// the package-level stripe.Key.
func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

func (p *StripeProvider) CreatePaymentMethod(ctx context.Context, methodType, cardToken string) (string, error) {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(methodType),
		Card: &stripe.PaymentMethodCardParams{Token: stripe.String(cardToken)},
	}
	params.Context = ctx
	pm, err := p.api.PaymentMethods.New(params)
	if err != nil {
		return "", err
	}
	return pm.ID, nil
}

func (p *StripeProvider) GetPrice(ctx context.Context, priceID string) (*Price, error) {
	params := &stripe.PriceParams{}
	params.Context = ctx
	pr, err := p.api.Prices.Get(priceID, params)
	if err != nil {
		return nil, err
	}
	return &Price{ID: pr.ID, UnitAmount: pr.UnitAmount, Currency: string(pr.Currency)}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, paymentMethodID string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email:         stripe.String(email),
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx
	c, err := p.api.Customers.New(params)
	if err != nil {
		return nil, err
	}
	return toCustomer(c), nil
}

func (p *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := p.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, err
	}
	return toCustomer(c), nil
}

func (p *StripeProvider) CreateAuthorization(ctx context.Context, in AuthorizationInput) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(in.Amount),
		Currency:      stripe.String(in.Currency),
		Customer:      stripe.String(in.CustomerID),
		PaymentMethod: stripe.String(in.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return toAuthorization(pi), nil
}

func (p *StripeProvider) GetAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(authorizationID, params)
	if err != nil {
		return nil, err
	}
	return toAuthorization(pi), nil
}

func (p *StripeProvider) CaptureAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + authorizationID)
	pi, err := p.api.PaymentIntents.Capture(authorizationID, params)
	if err != nil {
		return nil, err
	}
	return toAuthorization(pi), nil
}

func (p *StripeProvider) CancelAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey("cancel-" + authorizationID)
	pi, err := p.api.PaymentIntents.Cancel(authorizationID, params)
	if err != nil {
		return nil, err
	}
	return toAuthorization(pi), nil
}

func (p *StripeProvider) CreateSchedule(ctx context.Context, in ScheduleInput) (*Schedule, error) {
	params := &stripe.SubscriptionScheduleParams{
		Customer:    stripe.String(in.CustomerID),
		StartDate:   stripe.Int64(in.StartDate.Unix()),
		EndBehavior: stripe.String(in.EndBehavior),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	for _, ph := range in.Phases {
		params.Phases = append(params.Phases, toPhaseParams(ph))
	}
	s, err := p.api.SubscriptionSchedules.New(params)
	if err != nil {
		return nil, err
	}
	return toSchedule(s), nil
}

func (p *StripeProvider) ListSchedules(ctx context.Context, customerID string) ([]*Schedule, error) {
	params := &stripe.SubscriptionScheduleListParams{Customer: stripe.String(customerID)}
	params.Context = ctx
	it := p.api.SubscriptionSchedules.List(params)
	var out []*Schedule
	for it.Next() {
		out = append(out, toSchedule(it.SubscriptionSchedule()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *StripeProvider) UpdateSubscriptionPrice(ctx context.Context, in SubscriptionPriceUpdate) error {
	item := &stripe.SubscriptionItemsParams{Price: stripe.String(in.PriceID)}
	if in.ItemID != "" {
		item.ID = stripe.String(in.ItemID)
	}
	params := &stripe.SubscriptionParams{
		Items:             []*stripe.SubscriptionItemsParams{item},
		ProrationBehavior: stripe.String(prorationNone),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	_, err := p.api.Subscriptions.Update(in.SubscriptionID, params)
	return err
}

func toPhaseParams(ph SchedulePhase) *stripe.SubscriptionSchedulePhaseParams {
	pp := &stripe.SubscriptionSchedulePhaseParams{
		Items: []*stripe.SubscriptionSchedulePhaseItemParams{
			{Price: stripe.String(ph.PriceID)},
		},
		Metadata: ph.Metadata,
	}
	if ph.Trial {
		pp.Trial = stripe.Bool(true)
	}
	if ph.EndDate != nil {
		pp.EndDate = stripe.Int64(ph.EndDate.Unix())
	}
	if ph.Iterations > 0 {
		pp.Iterations = stripe.Int64(ph.Iterations)
	}
	if ph.DefaultPaymentMethod != "" {
		pp.DefaultPaymentMethod = stripe.String(ph.DefaultPaymentMethod)
	}
	if ph.BillingCycleAnchor != "" {
		pp.BillingCycleAnchor = stripe.String(ph.BillingCycleAnchor)
	}
	if ph.CollectionMethod != "" {
		pp.CollectionMethod = stripe.String(ph.CollectionMethod)
	}
	if ph.ProrationBehavior != "" {
		pp.ProrationBehavior = stripe.String(ph.ProrationBehavior)
	}
	return pp
}

func toCustomer(c *stripe.Customer) *Customer {
	out := &Customer{ID: c.ID, Email: c.Email}
	if c.InvoiceSettings != nil && c.InvoiceSettings.DefaultPaymentMethod != nil {
		out.DefaultPaymentMethod = c.InvoiceSettings.DefaultPaymentMethod.ID
	}
	return out
}

func toAuthorization(pi *stripe.PaymentIntent) *Authorization {
	a := &Authorization{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       authorizationStatusFromStripe(pi.Status),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		a.CustomerID = pi.Customer.ID
	}
	if pi.PaymentMethod != nil {
		a.PaymentMethodID = pi.PaymentMethod.ID
	}
	return a
}

func authorizationStatusFromStripe(s stripe.PaymentIntentStatus) AuthorizationStatus {
	switch s {
	case stripe.PaymentIntentStatusRequiresAction:
		return StatusRequiresAction
	case stripe.PaymentIntentStatusRequiresCapture:
		return StatusRequiresCapture
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return StatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusFailed
	default:
		return StatusCreated
	}
}

func toSchedule(s *stripe.SubscriptionSchedule) *Schedule {
	out := &Schedule{
		ID:          s.ID,
		Status:      string(s.Status),
		EndBehavior: string(s.EndBehavior),
		Metadata:    s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	for _, ph := range s.Phases {
		if ph == nil {
			continue
		}
		sp := SchedulePhase{Metadata: ph.Metadata}
		if len(ph.Items) > 0 && ph.Items[0] != nil && ph.Items[0].Price != nil {
			sp.PriceID = ph.Items[0].Price.ID
		}
		if ph.EndDate > 0 {
			end := time.Unix(ph.EndDate, 0).UTC()
			sp.EndDate = &end
		}
		if ph.DefaultPaymentMethod != nil {
			sp.DefaultPaymentMethod = ph.DefaultPaymentMethod.ID
		}
		out.Phases = append(out.Phases, sp)
	}
	return out
}

func authorizationStatusFromWire(s string) AuthorizationStatus {
	return authorizationStatusFromStripe(stripe.PaymentIntentStatus(s))
}
