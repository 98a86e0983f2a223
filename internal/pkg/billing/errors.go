package billing

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/stripe/stripe-go/v74"
)

var (
	ErrValidation                  = errors.New("validation failed")
	ErrInstrumentCreationFailed    = errors.New("failed to create payment method")
	ErrPriceLookupFailed           = errors.New("failed to retrieve price")
	ErrCustomerCreationFailed      = errors.New("failed to create customer")
	ErrAuthorizationFailed         = errors.New("failed to create payment authorization")
	ErrScheduleCreationFailed      = errors.New("failed to create subscription schedule")
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")
	ErrCorrelationNotFound         = errors.New("correlated record not found")
	ErrProviderActionFailed        = errors.New("provider action failed")
	ErrInvalidTransition           = errors.New("invalid authorization transition")
)

// StatusFor maps a webhook handling error to the HTTP status returned to the
// provider. 5xx makes the provider redeliver, 4xx does not.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrSignatureVerificationFailed),
		errors.Is(err, ErrCorrelationNotFound),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text of the outermost domain sentinel wrapped by err,
// suitable for a response body.
func PublicMessage(err error) string {
	for _, sentinel := range []error{
		ErrValidation,
		ErrInstrumentCreationFailed,
		ErrPriceLookupFailed,
		ErrCustomerCreationFailed,
		ErrAuthorizationFailed,
		ErrScheduleCreationFailed,
		ErrSignatureVerificationFailed,
		ErrCorrelationNotFound,
		ErrProviderActionFailed,
		ErrInvalidTransition,
	} {
		if errors.Is(err, sentinel) {
			if sentinel == ErrValidation {
				return Redact(err.Error())
			}
			return sentinel.Error()
		}
	}
	return "internal error"
}

var cardNumberPattern = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// Redact masks digit runs that look like card numbers.
func Redact(s string) string {
	return cardNumberPattern.ReplaceAllString(s, "[redacted]")
}

// DescribeProviderError renders err for logs without payment method details,
// charges or raw response headers the provider attaches to its error objects.
func DescribeProviderError(err error) string {
	if err == nil {
		return ""
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		return Redact(err.Error())
	}

	parts := []string{fmt.Sprintf("type=%s", se.Type)}
	if se.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", se.Code))
	}
	if se.DeclineCode != "" {
		parts = append(parts, fmt.Sprintf("decline_code=%s", se.DeclineCode))
	}
	if se.HTTPStatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", se.HTTPStatusCode))
	}
	if se.RequestID != "" {
		parts = append(parts, fmt.Sprintf("request_id=%s", se.RequestID))
	}
	if se.Msg != "" {
		parts = append(parts, fmt.Sprintf("message=%q", Redact(se.Msg)))
	}
	return strings.Join(parts, " ")
}

// ProviderError pairs a domain sentinel with the provider error that caused
// it. Error() only renders the sentinel so provider payloads stay out of
// responses; errors.Is/As still see both.
type ProviderError struct {
	Kind  error
	Cause error
}

func (e *ProviderError) Error() string {
	return e.Kind.Error()
}

func (e *ProviderError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}
