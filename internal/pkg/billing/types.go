package billing

import (
	"context"
	"time"
)

// Metadata keys written on authorizations, schedules and their phases.
const (
	MetadataPhase         = "phase"
	MetadataAuthorization = "authorizationId"
	MetadataContactID     = "contactId"
	MetadataContactEmail  = "contactEmail"
)

// Sink receives diagnostic lines. Implementations must never fail the caller.
type Sink interface {
	Append(line string)
}

// KeyValueStore is the short-TTL cache used for polled outcomes and the
// processed-event ledger. Absent keys are reported as cache.ErrMiss.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetXX overwrites key only if it still exists and reports whether it did.
	SetXX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	GetDel(ctx context.Context, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type discardSink struct{}

func (discardSink) Append(string) {}
