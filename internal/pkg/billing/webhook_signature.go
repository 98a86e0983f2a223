package billing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74/webhook"
)

// Event is a verified lifecycle event. Raw holds data.object.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

// VerifyEvent checks the Stripe-Signature header of payload against secret
// and decodes the event envelope. The account API version is not compared
// against the library's; handlers decode only the fields they need.
func VerifyEvent(payload []byte, signatureHeader, webhookSecret string) (Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return Event{}, fmt.Errorf("%w: missing signature or secret", ErrSignatureVerificationFailed)
	}

	ev, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrSignatureVerificationFailed, err)
	}
	// A verified envelope keeps its id and type even when it is unusable.
	partial := Event{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return partial, fmt.Errorf("%w: event %s has no data object", ErrValidation, ev.ID)
	}
	if strings.TrimSpace(string(ev.Type)) == "" {
		return partial, fmt.Errorf("%w: event %s has no type", ErrValidation, ev.ID)
	}
	return Event{ID: ev.ID, Type: string(ev.Type), Raw: ev.Data.Raw}, nil
}
