package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ManuelReschke/HoldFox/internal/pkg/billing"
)

var requestValidator = newRequestValidator()

func newRequestValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// CreateSubscriptionRequest is the body of POST /create-subscription.
type CreateSubscriptionRequest struct {
	PriceID      string `json:"priceId" form:"priceId" validate:"required,max=255"`
	ContactEmail string `json:"contactEmail" form:"contactEmail" validate:"required,email,max=200"`
	Type         string `json:"type" form:"type" validate:"omitempty,oneof=card"`
	CardTokenID  string `json:"cardTokenId" form:"cardTokenId" validate:"required,max=255"`
}

func (r *CreateSubscriptionRequest) Validate() error {
	return validateRequest(r)
}

func (r *CreateSubscriptionRequest) ToBilling() billing.SubscriptionRequest {
	return billing.SubscriptionRequest{
		PriceID:      strings.TrimSpace(r.PriceID),
		ContactEmail: strings.TrimSpace(r.ContactEmail),
		Type:         strings.TrimSpace(r.Type),
		CardTokenID:  strings.TrimSpace(r.CardTokenID),
	}
}

// CreatePaymentIntentRequest is the body of POST /create-payment-intent.
type CreatePaymentIntentRequest struct {
	ContactID    string `json:"contactId" form:"contactId" validate:"required,max=191"`
	ContactEmail string `json:"contactEmail" form:"contactEmail" validate:"required,email,max=200"`
	PriceID      string `json:"priceId" form:"priceId" validate:"required,max=255"`
	Type         string `json:"type" form:"type" validate:"omitempty,oneof=card"`
	CardTokenID  string `json:"cardTokenId" form:"cardTokenId" validate:"required,max=255"`
}

func (r *CreatePaymentIntentRequest) Validate() error {
	return validateRequest(r)
}

func (r *CreatePaymentIntentRequest) ToBilling() billing.HoldRequest {
	return billing.HoldRequest{
		ContactID:    strings.TrimSpace(r.ContactID),
		ContactEmail: strings.TrimSpace(r.ContactEmail),
		PriceID:      strings.TrimSpace(r.PriceID),
		Type:         strings.TrimSpace(r.Type),
		CardTokenID:  strings.TrimSpace(r.CardTokenID),
	}
}

// CreateSubscriptionResponse is the JSON answer of POST /create-subscription.
type CreateSubscriptionResponse struct {
	Success              bool              `json:"success"`
	SubscriptionSchedule *billing.Schedule `json:"subscriptionSchedule,omitempty"`
	RequiresAction       bool              `json:"requiresAction"`
	ClientSecret         string            `json:"clientSecret,omitempty"`
	Error                string            `json:"error,omitempty"`
}

// CreatePaymentIntentResponse is the JSON answer of POST /create-payment-intent.
type CreatePaymentIntentResponse struct {
	Success         bool   `json:"success"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	Status          string `json:"status,omitempty"`
	RequiresAction  bool   `json:"requiresAction"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	Error           string `json:"error,omitempty"`
}

// PaymentStatusResponse is the JSON answer of GET /check-payment-status. The
// outcome fields are inlined.
type PaymentStatusResponse struct {
	Success bool `json:"success"`
	*billing.CachedOutcome
	Error string `json:"error,omitempty"`
}

func validateRequest(r interface{}) error {
	err := requestValidator.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", billing.ErrValidation, err)
	}

	var missing, invalid []string
	for _, fe := range verrs {
		name := fe.Field()
		if fe.Tag() == "required" {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, name)
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required fields: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid fields: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("%w: %s", billing.ErrValidation, strings.Join(parts, "; "))
}
