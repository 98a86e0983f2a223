package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SubscriptionRequest is the input of the deferred-charge subscription flow.
type SubscriptionRequest struct {
	PriceID      string
	ContactEmail string
	Type         string
	CardTokenID  string
}

// SubscriptionResult is either a created schedule or a pending customer
// action with its client secret.
type SubscriptionResult struct {
	Schedule       *Schedule
	Authorization  *Authorization
	RequiresAction bool
	ClientSecret   string
}

// HoldRequest is the input of the single-charge hold flow.
type HoldRequest struct {
	ContactID    string
	ContactEmail string
	PriceID      string
	Type         string
	CardTokenID  string
}

// HoldResponse is the synchronous answer of the single-charge hold flow.
type HoldResponse struct {
	Authorization  *Authorization
	RequiresAction bool
	ClientSecret   string
}

// ServiceOptions wires the synchronous flows.
type ServiceOptions struct {
	Provider     Provider
	Tags         PhaseTags
	Sink         Sink
	Outcomes     *OutcomeStore
	TrialPriceID string
	PaidPriceID  string
}

// Service provides the synchronous authorization flows.
type Service struct {
	authorizer   *Authorizer
	schedules    *ScheduleBuilder
	outcomes     *OutcomeStore
	sink         Sink
	trialPriceID string
	paidPriceID  string
}

// NewService creates a billing service from injected collaborators.
func NewService(opts ServiceOptions) *Service {
	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}
	return &Service{
		authorizer:   NewAuthorizer(opts.Provider, sink),
		schedules:    NewScheduleBuilder(opts.Provider, opts.Tags, sink),
		outcomes:     opts.Outcomes,
		sink:         sink,
		trialPriceID: opts.TrialPriceID,
		paidPriceID:  opts.PaidPriceID,
	}
}

// CreateSubscription holds the price of req.PriceID on the card and schedules
// trial -> held -> paid against that hold.
func (s *Service) CreateSubscription(ctx context.Context, req SubscriptionRequest) (*SubscriptionResult, error) {
	auth, err := s.authorizer.Authorize(ctx, AuthorizationRequest{
		Type:      req.Type,
		CardToken: req.CardTokenID,
		Email:     req.ContactEmail,
		PriceID:   req.PriceID,
	})
	if err != nil {
		return nil, err
	}
	if auth.RequiresAction() {
		return &SubscriptionResult{
			Authorization:  auth.Authorization,
			RequiresAction: true,
			ClientSecret:   auth.Authorization.ClientSecret,
		}, nil
	}

	schedule, err := s.schedules.Create(ctx, ScheduleRequest{
		CustomerID:      auth.Customer.ID,
		TrialPriceID:    s.trialPriceID,
		PaidPriceID:     s.paidPriceID,
		PaymentMethodID: auth.PaymentMethodID,
		Authorization:   auth.Authorization,
	})
	if err != nil {
		return nil, err
	}
	return &SubscriptionResult{Schedule: schedule, Authorization: auth.Authorization}, nil
}

// CreatePaymentIntent places a single hold for a contact and caches the
// outcome for CheckPaymentStatus, on success and on failure.
func (s *Service) CreatePaymentIntent(ctx context.Context, req HoldRequest) (*HoldResponse, error) {
	contactID := strings.TrimSpace(req.ContactID)
	if contactID == "" {
		return nil, fmt.Errorf("%w: missing required fields: contactId", ErrValidation)
	}

	auth, err := s.authorizer.Authorize(ctx, AuthorizationRequest{
		Type:      req.Type,
		CardToken: req.CardTokenID,
		Email:     req.ContactEmail,
		PriceID:   req.PriceID,
		Metadata: map[string]string{
			MetadataContactID:    contactID,
			MetadataContactEmail: req.ContactEmail,
		},
	})

	var held *Authorization
	if auth != nil {
		held = auth.Authorization
	}
	outcome := outcomeFromAuthorization(contactID, req.ContactEmail, held)
	switch {
	case err != nil:
		outcome.Status = false
		outcome.Message = PublicMessage(err)
	case auth.RequiresAction():
		outcome.Message = "additional authentication required"
	}
	if auth != nil {
		outcome.PaymentMethodID = auth.PaymentMethodID
	}
	s.cacheOutcome(ctx, outcome)

	if err != nil {
		return nil, err
	}
	return &HoldResponse{
		Authorization:  auth.Authorization,
		RequiresAction: auth.RequiresAction(),
		ClientSecret:   auth.Authorization.ClientSecret,
	}, nil
}

// CheckPaymentStatus consumes the cached outcome for contactID.
func (s *Service) CheckPaymentStatus(ctx context.Context, contactID string) (*CachedOutcome, error) {
	if s.outcomes == nil {
		return nil, errors.New("payment status store is not configured")
	}
	return s.outcomes.Take(ctx, contactID)
}

func (s *Service) cacheOutcome(ctx context.Context, outcome CachedOutcome) {
	if s.outcomes == nil {
		return
	}
	if err := s.outcomes.Put(ctx, outcome); err != nil {
		s.sink.Append(fmt.Sprintf("Could not cache payment status for contact %s: %v", outcome.ContactID, err))
	}
}
