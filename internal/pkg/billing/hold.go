package billing

import (
	"context"
	"fmt"
	"strings"
)

// HoldResult reports the authorization after a capture or cancel attempt.
// Changed is false when the call was a no-op on a terminal authorization.
type HoldResult struct {
	Authorization *Authorization
	Changed       bool
}

// Holds captures and releases authorizations. The provider's status is the
// only idempotency guard: it is read before every mutation and terminal
// statuses are never touched again.
type Holds struct {
	provider Provider
}

func NewHolds(provider Provider) *Holds {
	return &Holds{provider: provider}
}

// Capture moves the reserved funds. Capturing a terminal authorization is a
// no-op.
func (h *Holds) Capture(ctx context.Context, authorizationID string) (*HoldResult, error) {
	return h.transition(ctx, authorizationID, StatusSucceeded, h.provider.CaptureAuthorization)
}

// Cancel releases the hold without moving funds. Cancelling a terminal
// authorization is a no-op.
func (h *Holds) Cancel(ctx context.Context, authorizationID string) (*HoldResult, error) {
	return h.transition(ctx, authorizationID, StatusCanceled, h.provider.CancelAuthorization)
}

func (h *Holds) transition(
	ctx context.Context,
	authorizationID string,
	target AuthorizationStatus,
	apply func(context.Context, string) (*Authorization, error),
) (*HoldResult, error) {
	id := strings.TrimSpace(authorizationID)
	if id == "" {
		return nil, fmt.Errorf("%w: authorization id is required", ErrValidation)
	}

	current, err := h.provider.GetAuthorization(ctx, id)
	if err != nil {
		return nil, &ProviderError{Kind: ErrProviderActionFailed, Cause: err}
	}
	if current.Status.Terminal() {
		return &HoldResult{Authorization: current}, nil
	}
	if !CanTransition(current.Status, target) {
		return nil, fmt.Errorf("%w: authorization %s is %s, cannot become %s", ErrInvalidTransition, id, current.Status, target)
	}

	updated, err := apply(ctx, id)
	if err != nil {
		// A concurrent delivery may have finished the job first.
		if latest, getErr := h.provider.GetAuthorization(ctx, id); getErr == nil && latest.Status.Terminal() {
			return &HoldResult{Authorization: latest}, nil
		}
		return nil, &ProviderError{Kind: ErrProviderActionFailed, Cause: err}
	}
	return &HoldResult{Authorization: updated, Changed: true}, nil
}
