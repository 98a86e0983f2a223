package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testScheduleRequest() ScheduleRequest {
	return ScheduleRequest{
		CustomerID:      "cus_1",
		TrialPriceID:    "price_trial",
		PaidPriceID:     "price_paid",
		PaymentMethodID: "pm_1",
		Authorization:   &Authorization{ID: "pi_1", Status: StatusRequiresCapture},
	}
}

func TestScheduleBuilder_BuildInput(t *testing.T) {
	b := NewScheduleBuilder(newFakeProvider(), DefaultPhaseTags(), nil)
	now := time.Date(2024, 3, 1, 10, 30, 15, 999, time.FixedZone("CET", 3600))

	in := b.BuildInput(testScheduleRequest(), now)

	start := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)
	assert.Equal(t, "cus_1", in.CustomerID)
	assert.True(t, in.StartDate.Equal(start))
	assert.Equal(t, "release", in.EndBehavior)
	assert.Equal(t, "pi_1", in.Metadata[MetadataAuthorization])
	require.Len(t, in.Phases, 3)

	trial, held, paid := in.Phases[0], in.Phases[1], in.Phases[2]

	assert.Equal(t, "price_trial", trial.PriceID)
	assert.True(t, trial.Trial)
	require.NotNil(t, trial.EndDate)
	assert.True(t, trial.EndDate.Equal(start.Add(7*24*time.Hour)))
	assert.Equal(t, "trial", trial.Metadata[MetadataPhase])

	assert.Equal(t, "price_trial", held.PriceID)
	assert.False(t, held.Trial)
	assert.Equal(t, int64(1), held.Iterations)
	assert.Equal(t, "pm_1", held.DefaultPaymentMethod)
	assert.Equal(t, "held", held.Metadata[MetadataPhase])

	assert.Equal(t, "price_paid", paid.PriceID)
	assert.Equal(t, "phase_start", paid.BillingCycleAnchor)
	assert.Equal(t, "charge_automatically", paid.CollectionMethod)
	assert.Equal(t, "none", paid.ProrationBehavior)
	assert.Equal(t, "pm_1", paid.DefaultPaymentMethod)
	assert.Equal(t, "paid", paid.Metadata[MetadataPhase])

	for _, ph := range in.Phases {
		assert.Equal(t, "pi_1", ph.Metadata[MetadataAuthorization])
	}
}

func TestScheduleBuilder_UsesConfiguredTags(t *testing.T) {
	tags, err := ParsePhaseTags("trialing", "authorized", "active")
	require.NoError(t, err)
	b := NewScheduleBuilder(newFakeProvider(), tags, nil)

	in := b.BuildInput(testScheduleRequest(), time.Now())
	assert.Equal(t, "trialing", in.Phases[0].Metadata[MetadataPhase])
	assert.Equal(t, "authorized", in.Phases[1].Metadata[MetadataPhase])
	assert.Equal(t, "active", in.Phases[2].Metadata[MetadataPhase])
}

func TestScheduleBuilder_Create(t *testing.T) {
	provider := newFakeProvider()
	b := NewScheduleBuilder(provider, DefaultPhaseTags(), nil)

	s, err := b.Create(context.Background(), testScheduleRequest())
	require.NoError(t, err)
	assert.Equal(t, "cus_1", s.CustomerID)
	assert.Len(t, provider.scheduleInputs, 1)
}

func TestScheduleBuilder_CreateValidation(t *testing.T) {
	provider := newFakeProvider()
	b := NewScheduleBuilder(provider, DefaultPhaseTags(), nil)

	req := testScheduleRequest()
	req.Authorization = nil
	req.PaidPriceID = ""

	_, err := b.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "paid price")
	assert.Contains(t, err.Error(), "authorization")
	assert.Empty(t, provider.scheduleInputs)
}

func TestScheduleBuilder_CreateProviderError(t *testing.T) {
	provider := newFakeProvider()
	provider.scheduleErr = errors.New("invalid phase configuration")
	sink := &recordingSink{}
	b := NewScheduleBuilder(provider, DefaultPhaseTags(), sink)

	_, err := b.Create(context.Background(), testScheduleRequest())
	require.ErrorIs(t, err, ErrScheduleCreationFailed)
	assert.Equal(t, "failed to create subscription schedule", err.Error())
	assert.True(t, sink.contains("Error creating subscription schedule: invalid phase configuration"))
}

func TestFindPaidPhase(t *testing.T) {
	tags := DefaultPhaseTags()
	b := NewScheduleBuilder(newFakeProvider(), tags, nil)
	in := b.BuildInput(testScheduleRequest(), time.Now())

	paid, err := FindPaidPhase(&Schedule{ID: "sub_sched_1", Phases: in.Phases}, tags)
	require.NoError(t, err)
	assert.Equal(t, "price_paid", paid.PriceID)

	_, err = FindPaidPhase(&Schedule{ID: "sub_sched_2", Phases: in.Phases[:2]}, tags)
	assert.ErrorIs(t, err, ErrCorrelationNotFound)
}
