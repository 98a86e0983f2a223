package billing

// AuthorizationStatus is the lifecycle state of a held charge.
type AuthorizationStatus string

const (
	StatusCreated         AuthorizationStatus = "created"
	StatusRequiresAction  AuthorizationStatus = "requires_action"
	StatusRequiresCapture AuthorizationStatus = "requires_capture"
	StatusSucceeded       AuthorizationStatus = "succeeded"
	StatusCanceled        AuthorizationStatus = "canceled"
	StatusFailed          AuthorizationStatus = "failed"
)

// Terminal reports whether s is absorbing.
func (s AuthorizationStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

var authorizationTransitions = map[AuthorizationStatus][]AuthorizationStatus{
	StatusCreated:         {StatusRequiresAction, StatusRequiresCapture, StatusFailed},
	StatusRequiresAction:  {StatusRequiresCapture, StatusCanceled},
	StatusRequiresCapture: {StatusSucceeded, StatusCanceled},
}

// CanTransition reports whether an authorization may move from -> to.
// Statuses only move forward; terminal statuses accept nothing.
func CanTransition(from, to AuthorizationStatus) bool {
	for _, next := range authorizationTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Authorization is a payment reservation confirmed against a customer's
// instrument but not captured.
type Authorization struct {
	ID              string
	Amount          int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Status          AuthorizationStatus
	ClientSecret    string
	Metadata        map[string]string
}

// Customer is the provider-side customer record created per attempt.
type Customer struct {
	ID                   string
	Email                string
	DefaultPaymentMethod string
}

// Price is the subset of a provider price needed to size an authorization.
type Price struct {
	ID         string
	UnitAmount int64
	Currency   string
}
