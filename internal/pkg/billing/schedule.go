package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TrialLength is fixed; callers cannot shorten or extend the trial.
const TrialLength = 7 * 24 * time.Hour

const (
	endBehaviorRelease            = "release"
	billingCycleAnchorPhaseStart  = "phase_start"
	collectionChargeAutomatically = "charge_automatically"
	prorationNone                 = "none"
)

// ScheduleRequest carries what the schedule builder needs from the
// authorization flow.
type ScheduleRequest struct {
	CustomerID      string
	TrialPriceID    string
	PaidPriceID     string
	PaymentMethodID string
	Authorization   *Authorization
}

// ScheduleBuilder creates the trial -> held -> paid subscription schedule.
type ScheduleBuilder struct {
	provider Provider
	tags     PhaseTags
	sink     Sink
	now      func() time.Time
}

func NewScheduleBuilder(provider Provider, tags PhaseTags, sink Sink) *ScheduleBuilder {
	if sink == nil {
		sink = discardSink{}
	}
	return &ScheduleBuilder{provider: provider, tags: tags, sink: sink, now: time.Now}
}

// BuildInput lays out the three phases starting at now. Every phase carries
// the id of the authorization that funds it.
func (b *ScheduleBuilder) BuildInput(req ScheduleRequest, now time.Time) ScheduleInput {
	now = now.UTC().Truncate(time.Second)
	trialEnd := now.Add(TrialLength)
	authID := req.Authorization.ID

	phaseMetadata := func(p Phase) map[string]string {
		return map[string]string{
			MetadataPhase:         b.tags.Tag(p),
			MetadataAuthorization: authID,
		}
	}

	return ScheduleInput{
		CustomerID:  req.CustomerID,
		StartDate:   now,
		EndBehavior: endBehaviorRelease,
		Metadata:    map[string]string{MetadataAuthorization: authID},
		Phases: []SchedulePhase{
			{
				PriceID:  req.TrialPriceID,
				Trial:    true,
				EndDate:  &trialEnd,
				Metadata: phaseMetadata(PhaseTrial),
			},
			{
				// The held phase bills the trial price; the authorization is
				// what bridges the gap until the paid phase charges.
				PriceID:              req.TrialPriceID,
				Iterations:           1,
				DefaultPaymentMethod: req.PaymentMethodID,
				Metadata:             phaseMetadata(PhaseHeld),
			},
			{
				PriceID:              req.PaidPriceID,
				BillingCycleAnchor:   billingCycleAnchorPhaseStart,
				CollectionMethod:     collectionChargeAutomatically,
				ProrationBehavior:    prorationNone,
				DefaultPaymentMethod: req.PaymentMethodID,
				Metadata:             phaseMetadata(PhasePaid),
			},
		},
	}
}

// Create validates req and asks the provider to create the schedule.
func (b *ScheduleBuilder) Create(ctx context.Context, req ScheduleRequest) (*Schedule, error) {
	if err := validateScheduleRequest(req); err != nil {
		return nil, err
	}
	in := b.BuildInput(req, b.now())
	schedule, err := b.provider.CreateSchedule(ctx, in)
	if err != nil {
		b.sink.Append(fmt.Sprintf("Error creating subscription schedule: %s", DescribeProviderError(err)))
		return nil, &ProviderError{Kind: ErrScheduleCreationFailed, Cause: err}
	}
	return schedule, nil
}

func validateScheduleRequest(req ScheduleRequest) error {
	var missing []string
	if strings.TrimSpace(req.CustomerID) == "" {
		missing = append(missing, "customer id")
	}
	if strings.TrimSpace(req.TrialPriceID) == "" {
		missing = append(missing, "trial price")
	}
	if strings.TrimSpace(req.PaidPriceID) == "" {
		missing = append(missing, "paid price")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		missing = append(missing, "payment method")
	}
	if req.Authorization == nil || strings.TrimSpace(req.Authorization.ID) == "" {
		missing = append(missing, "authorization")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: schedule requires %s", ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// FindPaidPhase returns the paid phase of schedule.
func FindPaidPhase(schedule *Schedule, tags PhaseTags) (*SchedulePhase, error) {
	if schedule == nil {
		return nil, errors.New("schedule is nil")
	}
	for i := range schedule.Phases {
		if tags.Parse(schedule.Phases[i].Metadata[MetadataPhase]) == PhasePaid {
			return &schedule.Phases[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no paid phase in schedule %s", ErrCorrelationNotFound, schedule.ID)
}
