package billing

import (
	"fmt"
	"strings"
)

// Phase identifies a segment of the trial -> held -> paid schedule.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseTrial
	PhaseHeld
	PhasePaid
)

func (p Phase) String() string {
	switch p {
	case PhaseTrial:
		return "trial"
	case PhaseHeld:
		return "held"
	case PhasePaid:
		return "paid"
	default:
		return "unknown"
	}
}

// PhaseTags maps the configured metadata strings onto phases. The zero value
// is not usable; build it with ParsePhaseTags.
type PhaseTags struct {
	trial string
	held  string
	paid  string
}

// ParsePhaseTags validates the configured tag strings. Tags must be non-empty
// and distinct, otherwise metadata read back from events would be ambiguous.
func ParsePhaseTags(trial, held, paid string) (PhaseTags, error) {
	t := PhaseTags{
		trial: strings.TrimSpace(trial),
		held:  strings.TrimSpace(held),
		paid:  strings.TrimSpace(paid),
	}
	if t.trial == "" || t.held == "" || t.paid == "" {
		return PhaseTags{}, fmt.Errorf("phase tags must not be empty (trial=%q held=%q paid=%q)", trial, held, paid)
	}
	if t.trial == t.held || t.trial == t.paid || t.held == t.paid {
		return PhaseTags{}, fmt.Errorf("phase tags must be distinct (trial=%q held=%q paid=%q)", t.trial, t.held, t.paid)
	}
	return t, nil
}

// DefaultPhaseTags uses the lowercase phase names as tags.
func DefaultPhaseTags() PhaseTags {
	return PhaseTags{trial: "trial", held: "held", paid: "paid"}
}

// Tag returns the metadata string written for p.
func (t PhaseTags) Tag(p Phase) string {
	switch p {
	case PhaseTrial:
		return t.trial
	case PhaseHeld:
		return t.held
	case PhasePaid:
		return t.paid
	default:
		return ""
	}
}

// Parse resolves a metadata string back to a phase. Unknown or empty tags
// yield PhaseUnknown.
func (t PhaseTags) Parse(tag string) Phase {
	switch strings.TrimSpace(tag) {
	case "":
		return PhaseUnknown
	case t.trial:
		return PhaseTrial
	case t.held:
		return PhaseHeld
	case t.paid:
		return PhasePaid
	default:
		return PhaseUnknown
	}
}
