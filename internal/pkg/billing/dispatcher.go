package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Event types handled by the dispatcher.
const (
	EventInvoicePaymentSucceeded        = "invoice.payment_succeeded"
	EventInvoicePaymentFailed           = "invoice.payment_failed"
	EventSubscriptionUpdated            = "customer.subscription.updated"
	EventSubscriptionDeleted            = "customer.subscription.deleted"
	EventPaymentIntentFailed            = "payment_intent.payment_failed"
	EventPaymentIntentCapturableUpdated = "payment_intent.amount_capturable_updated"
	EventPaymentIntentSucceeded         = "payment_intent.succeeded"
	EventPaymentIntentCanceled          = "payment_intent.canceled"
)

// Actions reported for a handled event.
const (
	ActionRejected  = "rejected"
	ActionDuplicate = "duplicate"
	ActionIgnored   = "ignored"
	ActionCaptured  = "captured"
	ActionCanceled  = "canceled"
	ActionPromoted  = "promoted"
	ActionNoop      = "noop"
	ActionLogged    = "logged"
	ActionRecorded  = "recorded"
	ActionFailed    = "failed"
)

const (
	processedEventKeyPrefix = "webhook_event:"
	processedEventTTL       = 24 * time.Hour
	subscriptionStatusLive  = "active"
	scheduleStatusLive      = "active"
)

// Result is what the HTTP layer needs to answer the provider.
type Result struct {
	EventID   string
	EventType string
	Status    int
	Action    string
	Err       error
}

// Duplicate reports whether the event had already been processed.
func (r Result) Duplicate() bool {
	return r.Action == ActionDuplicate
}

type eventHandler func(ctx context.Context, ev Event) (string, error)

// DispatcherOptions wires the dispatcher's collaborators.
type DispatcherOptions struct {
	WebhookSecret string
	Provider      Provider
	Tags          PhaseTags
	Sink          Sink
	// Ledger remembers processed event ids. Optional.
	Ledger KeyValueStore
	// Outcomes receives payment intent updates for polling callers. Optional.
	Outcomes *OutcomeStore
}

// Dispatcher verifies lifecycle events and applies exactly one transition per
// event type.
type Dispatcher struct {
	secret   string
	provider Provider
	holds    *Holds
	tags     PhaseTags
	sink     Sink
	ledger   KeyValueStore
	outcomes *OutcomeStore
	handlers map[string]eventHandler
}

func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}
	d := &Dispatcher{
		secret:   opts.WebhookSecret,
		provider: opts.Provider,
		holds:    NewHolds(opts.Provider),
		tags:     opts.Tags,
		sink:     sink,
		ledger:   opts.Ledger,
		outcomes: opts.Outcomes,
	}
	d.handlers = map[string]eventHandler{
		EventInvoicePaymentSucceeded:        d.handleInvoicePaid,
		EventInvoicePaymentFailed:           d.handleInvoiceFailed,
		EventSubscriptionUpdated:            d.handleSubscriptionUpdated,
		EventSubscriptionDeleted:            d.handleSubscriptionDeleted,
		EventPaymentIntentFailed:            d.handlePaymentIntentFailed,
		EventPaymentIntentCapturableUpdated: d.handlePaymentIntentUpdate,
		EventPaymentIntentSucceeded:         d.handlePaymentIntentUpdate,
		EventPaymentIntentCanceled:          d.handlePaymentIntentUpdate,
	}
	return d
}

// Handles reports whether eventType has a dedicated handler.
func (d *Dispatcher) Handles(eventType string) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch verifies payload and runs the handler for its type. Unhandled and
// benign events are acknowledged; failed required actions return 5xx so the
// provider redelivers; structurally missing data returns 4xx.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, signature string) Result {
	ev, err := VerifyEvent(payload, signature, d.secret)
	if err != nil {
		if errors.Is(err, ErrSignatureVerificationFailed) {
			d.sink.Append(fmt.Sprintf("Webhook signature verification failed: %v", err))
			return Result{Status: http.StatusBadRequest, Action: ActionRejected, Err: err}
		}
		d.sink.Append(fmt.Sprintf("Invalid webhook event: %v", err))
		return Result{EventID: ev.ID, EventType: ev.Type, Status: StatusFor(err), Action: ActionFailed, Err: err}
	}
	res := Result{EventID: ev.ID, EventType: ev.Type}

	if d.alreadyProcessed(ctx, ev.ID) {
		res.Status = http.StatusOK
		res.Action = ActionDuplicate
		return res
	}

	handler, ok := d.handlers[ev.Type]
	if !ok {
		d.sink.Append(fmt.Sprintf("Unhandled event type: %s", ev.Type))
		res.Status = http.StatusOK
		res.Action = ActionIgnored
		d.remember(ctx, ev.ID)
		return res
	}

	action, err := handler(ctx, ev)
	if err != nil {
		d.sink.Append(fmt.Sprintf("Error handling webhook event %s (%s): %s", ev.ID, ev.Type, DescribeProviderError(err)))
		res.Status = StatusFor(err)
		res.Action = ActionFailed
		res.Err = err
		return res
	}
	res.Status = http.StatusOK
	res.Action = action
	d.remember(ctx, ev.ID)
	return res
}

func (d *Dispatcher) alreadyProcessed(ctx context.Context, eventID string) bool {
	if d.ledger == nil || eventID == "" {
		return false
	}
	seen, err := d.ledger.Exists(ctx, processedEventKeyPrefix+eventID)
	if err != nil {
		d.sink.Append(fmt.Sprintf("Could not check processed webhook event %s: %v", eventID, err))
		return false
	}
	return seen
}

func (d *Dispatcher) remember(ctx context.Context, eventID string) {
	if d.ledger == nil || eventID == "" {
		return
	}
	if err := d.ledger.Set(ctx, processedEventKeyPrefix+eventID, "1", processedEventTTL); err != nil {
		d.sink.Append(fmt.Sprintf("Could not record processed webhook event %s: %v", eventID, err))
	}
}

type invoiceObject struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Subscription        string `json:"subscription"`
	SubscriptionDetails struct {
		Metadata map[string]string `json:"metadata"`
	} `json:"subscription_details"`
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Customer string            `json:"customer"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	Items    struct {
		Data []struct {
			ID    string `json:"id"`
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type paymentIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Customer         string            `json:"customer"`
	PaymentMethod    string            `json:"payment_method"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func decodeObject(ev Event, out interface{}) error {
	if err := json.Unmarshal(ev.Raw, out); err != nil {
		return fmt.Errorf("%w: decode %s object of event %s: %v", ErrValidation, ev.Type, ev.ID, err)
	}
	return nil
}

func (d *Dispatcher) handleInvoicePaid(ctx context.Context, ev Event) (string, error) {
	var inv invoiceObject
	if err := decodeObject(ev, &inv); err != nil {
		return ActionFailed, err
	}
	md := inv.SubscriptionDetails.Metadata
	phase := d.tags.Parse(md[MetadataPhase])
	if phase != PhaseHeld {
		return ActionIgnored, nil
	}
	authID := strings.TrimSpace(md[MetadataAuthorization])
	if authID == "" {
		return ActionFailed, fmt.Errorf("%w: invoice %s in held phase carries no authorization id", ErrCorrelationNotFound, inv.ID)
	}

	res, err := d.holds.Capture(ctx, authID)
	if err != nil {
		return ActionFailed, err
	}
	if !res.Changed {
		d.sink.Append(fmt.Sprintf("Authorization %s already %s; capture for invoice %s skipped", authID, res.Authorization.Status, inv.ID))
		return ActionNoop, nil
	}
	d.sink.Append(fmt.Sprintf("Captured payment for invoice %s (authorization %s)", inv.ID, authID))
	return ActionCaptured, nil
}

func (d *Dispatcher) handleSubscriptionUpdated(ctx context.Context, ev Event) (string, error) {
	var sub subscriptionObject
	if err := decodeObject(ev, &sub); err != nil {
		return ActionFailed, err
	}
	if sub.Status != subscriptionStatusLive || d.tags.Parse(sub.Metadata[MetadataPhase]) != PhaseHeld {
		return ActionIgnored, nil
	}

	schedules, err := d.provider.ListSchedules(ctx, sub.Customer)
	if err != nil {
		return ActionFailed, &ProviderError{Kind: ErrProviderActionFailed, Cause: err}
	}
	if len(schedules) == 0 {
		return ActionFailed, fmt.Errorf("%w: no subscription schedule found for customer %s", ErrCorrelationNotFound, sub.Customer)
	}
	var active *Schedule
	for _, s := range schedules {
		if s != nil && s.Status == scheduleStatusLive {
			active = s
			break
		}
	}
	if active == nil {
		return ActionFailed, fmt.Errorf("%w: no active subscription schedule found for subscription %s", ErrCorrelationNotFound, sub.ID)
	}
	paid, err := FindPaidPhase(active, d.tags)
	if err != nil {
		return ActionFailed, err
	}
	if strings.TrimSpace(paid.PriceID) == "" {
		return ActionFailed, fmt.Errorf("%w: no price found for paid phase in subscription %s", ErrCorrelationNotFound, sub.ID)
	}

	var itemID string
	for _, item := range sub.Items.Data {
		if item.Price.ID == paid.PriceID {
			return ActionNoop, nil
		}
		if itemID == "" {
			itemID = strings.TrimSpace(item.ID)
		}
	}
	if itemID == "" {
		return ActionFailed, fmt.Errorf("%w: subscription %s has no item to move to the paid price", ErrCorrelationNotFound, sub.ID)
	}

	err = d.provider.UpdateSubscriptionPrice(ctx, SubscriptionPriceUpdate{
		SubscriptionID: sub.ID,
		ItemID:         itemID,
		PriceID:        paid.PriceID,
		Metadata: map[string]string{
			MetadataPhase:         d.tags.Tag(PhasePaid),
			MetadataAuthorization: sub.Metadata[MetadataAuthorization],
		},
	})
	if err != nil {
		return ActionFailed, &ProviderError{Kind: ErrProviderActionFailed, Cause: err}
	}
	d.sink.Append(fmt.Sprintf("Subscription %s upgraded to paid phase with price %s", sub.ID, paid.PriceID))
	return ActionPromoted, nil
}

func (d *Dispatcher) handleSubscriptionDeleted(ctx context.Context, ev Event) (string, error) {
	var sub subscriptionObject
	if err := decodeObject(ev, &sub); err != nil {
		return ActionFailed, err
	}
	phase := d.tags.Parse(sub.Metadata[MetadataPhase])
	if phase != PhaseTrial && phase != PhaseHeld {
		return ActionIgnored, nil
	}
	authID := strings.TrimSpace(sub.Metadata[MetadataAuthorization])
	if authID == "" {
		return ActionFailed, fmt.Errorf("%w: subscription %s in %s phase carries no authorization id", ErrCorrelationNotFound, sub.ID, phase)
	}

	res, err := d.holds.Cancel(ctx, authID)
	if err != nil {
		return ActionFailed, err
	}
	if !res.Changed {
		d.sink.Append(fmt.Sprintf("Authorization %s already %s; release for subscription %s skipped", authID, res.Authorization.Status, sub.ID))
		return ActionNoop, nil
	}
	d.sink.Append(fmt.Sprintf("Released authorization %s for deleted subscription %s", authID, sub.ID))
	return ActionCanceled, nil
}

func (d *Dispatcher) handleInvoiceFailed(ctx context.Context, ev Event) (string, error) {
	var inv invoiceObject
	if err := decodeObject(ev, &inv); err != nil {
		return ActionFailed, err
	}
	d.sink.Append(fmt.Sprintf("Payment failed for subscription %s. Customer: %s", inv.Subscription, d.customerLabel(ctx, inv.Customer)))
	return ActionLogged, nil
}

func (d *Dispatcher) handlePaymentIntentFailed(ctx context.Context, ev Event) (string, error) {
	var pi paymentIntentObject
	if err := decodeObject(ev, &pi); err != nil {
		return ActionFailed, err
	}
	reason := ""
	if pi.LastPaymentError != nil {
		reason = Redact(pi.LastPaymentError.Message)
	}
	d.sink.Append(fmt.Sprintf("Payment intent %s failed. Customer: %s. Reason: %s", pi.ID, d.customerLabel(ctx, pi.Customer), reason))
	if d.recordPaymentIntent(ctx, pi, reason) {
		return ActionRecorded, nil
	}
	return ActionLogged, nil
}

func (d *Dispatcher) handlePaymentIntentUpdate(ctx context.Context, ev Event) (string, error) {
	var pi paymentIntentObject
	if err := decodeObject(ev, &pi); err != nil {
		return ActionFailed, err
	}
	if d.recordPaymentIntent(ctx, pi, "") {
		return ActionRecorded, nil
	}
	return ActionIgnored, nil
}

// recordPaymentIntent refreshes the polled outcome of a contact-tagged
// authorization while it is still waiting to be picked up. Cache failures are
// logged, never returned.
func (d *Dispatcher) recordPaymentIntent(ctx context.Context, pi paymentIntentObject, message string) bool {
	contactID := strings.TrimSpace(pi.Metadata[MetadataContactID])
	if d.outcomes == nil || contactID == "" {
		return false
	}
	auth := &Authorization{
		ID:              pi.ID,
		Amount:          pi.Amount,
		CustomerID:      pi.Customer,
		PaymentMethodID: pi.PaymentMethod,
		Status:          authorizationStatusFromWire(pi.Status),
	}
	outcome := outcomeFromAuthorization(contactID, pi.Metadata[MetadataContactEmail], auth)
	outcome.Message = message
	refreshed, err := d.outcomes.Refresh(ctx, outcome)
	if err != nil {
		d.sink.Append(fmt.Sprintf("Could not cache payment status for contact %s: %v", contactID, err))
		return false
	}
	if !refreshed {
		d.sink.Append(fmt.Sprintf("No pending payment status for contact %s; update from %s not cached", contactID, pi.ID))
	}
	return refreshed
}

func (d *Dispatcher) customerLabel(ctx context.Context, customerID string) string {
	if strings.TrimSpace(customerID) == "" {
		return "unknown"
	}
	c, err := d.provider.GetCustomer(ctx, customerID)
	if err != nil {
		d.sink.Append(fmt.Sprintf("Could not load customer %s: %s", customerID, DescribeProviderError(err)))
		return customerID
	}
	if c.Email == "" {
		return customerID
	}
	return c.Email
}
