package admission

import (
	"errors"
	"fmt"
)

// Verdict is the admission outcome.
type Verdict string

const (
	Admit  Verdict = "admit"
	Reject Verdict = "reject"
)

// Kind classifies why a candidate was rejected.
type Kind string

const (
	KindNone              Kind = ""
	KindMalformed         Kind = "malformed_type_identifier"
	KindNotAllowed        Kind = "not_allowed"
	KindDenied            Kind = "denied"
	KindPolicyUnavailable Kind = "policy_unavailable"
)

// ReasonMalformed is the reason attached to every malformed-identifier rejection.
const ReasonMalformed = "malformed type identifier"

var (
	// ErrMalformedTypeIdentifier marks a candidate that is empty or not a valid identifier.
	ErrMalformedTypeIdentifier = errors.New("malformed type identifier")
	// ErrTypeRejected marks a well-formed candidate that the policy does not admit.
	ErrTypeRejected = errors.New("type rejected")
	// ErrPolicyUnavailable marks an evaluation with no usable policy.
	ErrPolicyUnavailable = errors.New("policy unavailable")
)

// Decision is the result of evaluating one candidate type.
type Decision struct {
	Verdict   Verdict `json:"decision"`
	Candidate string  `json:"type"`
	Kind      Kind    `json:"kind,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Rule      string  `json:"rule,omitempty"`
}

// Admitted reports whether the verdict is Admit.
func (d Decision) Admitted() bool {
	return d.Verdict == Admit
}

// Err returns nil for an admitted candidate and a *RejectionError otherwise.
func (d Decision) Err() error {
	if d.Admitted() {
		return nil
	}
	return &RejectionError{Candidate: d.Candidate, Kind: d.Kind, Reason: d.Reason}
}

// RejectionError describes a rejected candidate.
type RejectionError struct {
	Candidate string
	Kind      Kind
	Reason    string
}

func (e *RejectionError) Error() string {
	if e.Candidate == "" {
		return fmt.Sprintf("type rejected: %s", e.Reason)
	}
	return fmt.Sprintf("type %q rejected: %s", e.Candidate, e.Reason)
}

// Is maps the rejection kind onto the package sentinels.
func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrTypeRejected:
		return true
	case ErrMalformedTypeIdentifier:
		return e.Kind == KindMalformed
	case ErrPolicyUnavailable:
		return e.Kind == KindPolicyUnavailable
	}
	return false
}

// ParseVerdict maps a string to a Verdict. Fail-closed: unknown → Reject.
func ParseVerdict(s string) Verdict {
	if Verdict(s) == Admit {
		return Admit
	}
	return Reject
}

func admit(candidate, rule string) Decision {
	return Decision{Verdict: Admit, Candidate: candidate, Rule: rule}
}

func reject(candidate string, kind Kind, reason, rule string) Decision {
	return Decision{Verdict: Reject, Candidate: candidate, Kind: kind, Reason: reason, Rule: rule}
}
