package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAuthorizationRequest() AuthorizationRequest {
	return AuthorizationRequest{
		CardToken: "tok_visa",
		Email:     "jane@example.com",
		PriceID:   "price_trial",
	}
}

func TestAuthorizer_Authorize(t *testing.T) {
	provider := newFakeProvider()
	a := NewAuthorizer(provider, nil)

	res, err := a.Authorize(context.Background(), testAuthorizationRequest())
	require.NoError(t, err)

	assert.Equal(t, "pm_tok_visa", res.PaymentMethodID)
	assert.Equal(t, "jane@example.com", res.Customer.Email)
	assert.Equal(t, "pm_tok_visa", res.Customer.DefaultPaymentMethod)
	assert.Equal(t, StatusRequiresCapture, res.Authorization.Status)
	assert.False(t, res.RequiresAction())

	require.Len(t, provider.authInputs, 1)
	in := provider.authInputs[0]
	assert.Equal(t, int64(4900), in.Amount)
	assert.Equal(t, "usd", in.Currency)
	assert.Equal(t, res.Customer.ID, in.CustomerID)
	assert.NotEmpty(t, in.IdempotencyKey)
}

func TestAuthorizer_FreshIdempotencyKeyPerAttempt(t *testing.T) {
	provider := newFakeProvider()
	a := NewAuthorizer(provider, nil)

	_, err := a.Authorize(context.Background(), testAuthorizationRequest())
	require.NoError(t, err)
	_, err = a.Authorize(context.Background(), testAuthorizationRequest())
	require.NoError(t, err)

	require.Len(t, provider.authInputs, 2)
	assert.NotEqual(t, provider.authInputs[0].IdempotencyKey, provider.authInputs[1].IdempotencyKey)
}

func TestAuthorizer_RequiresAction(t *testing.T) {
	provider := newFakeProvider()
	provider.authStatus = StatusRequiresAction
	a := NewAuthorizer(provider, nil)

	res, err := a.Authorize(context.Background(), testAuthorizationRequest())
	require.NoError(t, err)
	assert.True(t, res.RequiresAction())
	assert.NotEmpty(t, res.Authorization.ClientSecret)
}

func TestAuthorizer_UnexpectedStatus(t *testing.T) {
	provider := newFakeProvider()
	provider.authStatus = StatusFailed
	sink := &recordingSink{}
	a := NewAuthorizer(provider, sink)

	res, err := a.Authorize(context.Background(), testAuthorizationRequest())
	require.ErrorIs(t, err, ErrAuthorizationFailed)
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Authorization.Status)
	assert.True(t, sink.contains("ended in status failed"))
}

func TestAuthorizer_Validation(t *testing.T) {
	provider := newFakeProvider()
	a := NewAuthorizer(provider, nil)

	_, err := a.Authorize(context.Background(), AuthorizationRequest{PriceID: "price_trial"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "cardTokenId")
	assert.NotContains(t, err.Error(), "priceId")
	assert.Empty(t, provider.authInputs)
}

func TestAuthorizer_ProviderFailures(t *testing.T) {
	cause := errors.New("Your card 4242424242424242 was declined")

	tests := []struct {
		name    string
		setup   func(p *fakeProvider)
		want    error
		logLine string
	}{
		{
			name:    "payment method",
			setup:   func(p *fakeProvider) { p.paymentMethodErr = cause },
			want:    ErrInstrumentCreationFailed,
			logLine: "Error creating payment method",
		},
		{
			name:    "price",
			setup:   func(p *fakeProvider) { p.priceErr = cause },
			want:    ErrPriceLookupFailed,
			logLine: "Error retrieving price price_trial",
		},
		{
			name:    "customer",
			setup:   func(p *fakeProvider) { p.customerErr = cause },
			want:    ErrCustomerCreationFailed,
			logLine: "Error creating customer",
		},
		{
			name:    "authorization",
			setup:   func(p *fakeProvider) { p.authErr = cause },
			want:    ErrAuthorizationFailed,
			logLine: "Error creating payment authorization",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			tt.setup(provider)
			sink := &recordingSink{}
			a := NewAuthorizer(provider, sink)

			res, err := a.Authorize(context.Background(), testAuthorizationRequest())
			assert.Nil(t, res)
			require.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, tt.want.Error(), err.Error())

			assert.True(t, sink.contains(tt.logLine), sink.joined())
			assert.NotContains(t, sink.joined(), "4242424242424242")
		})
	}
}
