package payment

import "strings"

// Status is the payment state. After initiation it mirrors the provider's status string verbatim.
type Status string

const (
	StatusNotInitialized Status = "not_initialized"
	StatusInitiated      Status = "initiated"
	StatusConfirmed      Status = "confirmed"
)

// Outcome classifies a provider status.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeSucceeded
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

var failureStatuses = map[string]struct{}{
	"failed":    {},
	"declined":  {},
	"rejected":  {},
	"expired":   {},
	"cancelled": {},
	"canceled":  {},
	"timeout":   {},
}

func (s Status) Outcome() Outcome {
	if s == StatusConfirmed {
		return OutcomeSucceeded
	}
	if _, ok := failureStatuses[strings.ToLower(strings.TrimSpace(string(s)))]; ok {
		return OutcomeFailed
	}
	return OutcomePending
}

func (s Status) IsTerminal() bool { return s.Outcome() != OutcomePending }
