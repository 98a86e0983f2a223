package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/HoldFox/internal/pkg/cache"
)

const (
	// OutcomeTTL bounds how long a polling caller can pick up a result.
	OutcomeTTL = 1440 * time.Minute

	outcomeKeyPrefix = "payment_status:"
)

var ErrOutcomeNotFound = errors.New("payment status not found")

// CachedOutcome is the result of an authorization attempt as seen by a
// polling caller.
type CachedOutcome struct {
	Status              bool   `json:"status"`
	Amount              int64  `json:"amount"`
	ContactID           string `json:"contactId"`
	ContactEmail        string `json:"contactEmail"`
	PaymentMethodID     string `json:"paymentMethodId,omitempty"`
	AuthorizationID     string `json:"paymentIntentId,omitempty"`
	AuthorizationStatus string `json:"paymentIntentStatus,omitempty"`
	Message             string `json:"message,omitempty"`
}

// OutcomeStore keeps one outcome per contact. Reads are destructive: the
// first successful Take consumes the record.
type OutcomeStore struct {
	store KeyValueStore
}

func NewOutcomeStore(store KeyValueStore) *OutcomeStore {
	return &OutcomeStore{store: store}
}

func (s *OutcomeStore) Put(ctx context.Context, o CachedOutcome) error {
	contactID := strings.TrimSpace(o.ContactID)
	if contactID == "" {
		return fmt.Errorf("%w: contact id is required", ErrValidation)
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, outcomeKeyPrefix+contactID, string(raw), OutcomeTTL)
}

// Refresh replaces the outcome of a contact whose record has not been taken
// yet. It reports false when there is nothing pending, so a consumed record
// stays consumed.
func (s *OutcomeStore) Refresh(ctx context.Context, o CachedOutcome) (bool, error) {
	contactID := strings.TrimSpace(o.ContactID)
	if contactID == "" {
		return false, fmt.Errorf("%w: contact id is required", ErrValidation)
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return false, err
	}
	return s.store.SetXX(ctx, outcomeKeyPrefix+contactID, string(raw), OutcomeTTL)
}

func (s *OutcomeStore) Take(ctx context.Context, contactID string) (*CachedOutcome, error) {
	id := strings.TrimSpace(contactID)
	if id == "" {
		return nil, fmt.Errorf("%w: contactId is required", ErrValidation)
	}
	raw, err := s.store.GetDel(ctx, outcomeKeyPrefix+id)
	if err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, ErrOutcomeNotFound
		}
		return nil, err
	}
	var out CachedOutcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode cached outcome for %s: %w", id, err)
	}
	return &out, nil
}

// outcomeFromAuthorization builds the cached view of auth for contact.
func outcomeFromAuthorization(contactID, contactEmail string, auth *Authorization) CachedOutcome {
	o := CachedOutcome{ContactID: contactID, ContactEmail: contactEmail}
	if auth == nil {
		return o
	}
	o.Amount = auth.Amount
	o.PaymentMethodID = auth.PaymentMethodID
	o.AuthorizationID = auth.ID
	o.AuthorizationStatus = string(auth.Status)
	o.Status = auth.Status == StatusRequiresCapture || auth.Status == StatusSucceeded
	return o
}
