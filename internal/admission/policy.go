package admission

import (
	"fmt"
	"sort"
)

// Checker evaluates a candidate type identifier.
type Checker interface {
	Evaluate(candidate string) Decision
}

// Policy is an immutable allow-list. Build it with NewPolicy; never mutate it
// afterwards. A nil *Policy is valid and rejects everything.
type Policy struct {
	allowExact map[string]string // type -> raw entry
	allowNS    []Pattern
	denyExact  map[string]string
	denyNS     []Pattern
	hash       string
}

// NewPolicy compiles allow and deny entries into a Policy. Any invalid entry
// fails the whole policy.
func NewPolicy(allow, deny []string, hash string) (*Policy, error) {
	p := &Policy{
		allowExact: make(map[string]string, len(allow)),
		denyExact:  make(map[string]string, len(deny)),
		hash:       hash,
	}
	for _, raw := range allow {
		pat, err := ParsePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("allow: %w", err)
		}
		if pat.Namespace {
			p.allowNS = append(p.allowNS, pat)
		} else {
			p.allowExact[pat.Name] = pat.Raw
		}
	}
	for _, raw := range deny {
		pat, err := ParsePattern(raw)
		if err != nil {
			return nil, fmt.Errorf("deny: %w", err)
		}
		if pat.Namespace {
			p.denyNS = append(p.denyNS, pat)
		} else {
			p.denyExact[pat.Name] = pat.Raw
		}
	}
	return p, nil
}

// MustPolicy is NewPolicy for static entries known to be valid.
func MustPolicy(allow ...string) *Policy {
	p, err := NewPolicy(allow, nil, "")
	if err != nil {
		panic(err)
	}
	return p
}

// Hash identifies the source the policy was built from.
func (p *Policy) Hash() string {
	if p == nil {
		return ""
	}
	return p.hash
}

// Len returns the number of allow entries.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.allowExact) + len(p.allowNS)
}

// Entries returns allow entries in canonical sorted form.
func (p *Policy) Entries() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, p.Len())
	for name := range p.allowExact {
		out = append(out, name)
	}
	for _, ns := range p.allowNS {
		out = append(out, ns.String())
	}
	sort.Strings(out)
	return out
}

// Evaluate decides whether candidate may be constructed.
func (p *Policy) Evaluate(candidate string) Decision {
	return Evaluate(candidate, p)
}

// Evaluate decides ADMIT or REJECT for candidate under policy.
//
// Order:
//  1. No policy → reject (policy unavailable)
//  2. Malformed identifier → reject
//  3. Deny entries → reject
//  4. Exact allow, then namespace allow → admit
//  5. Anything else → reject
func Evaluate(candidate string, policy *Policy) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = reject(candidate, KindPolicyUnavailable, fmt.Sprintf("evaluation failed: %v", r), "")
		}
	}()

	if policy == nil {
		return reject(candidate, KindPolicyUnavailable, "no admission policy loaded", "")
	}
	if !ValidIdentifier(candidate) {
		return reject(candidate, KindMalformed, ReasonMalformed, "")
	}

	if raw, ok := policy.denyExact[candidate]; ok {
		return reject(candidate, KindDenied, fmt.Sprintf("type is denied by %q", raw), raw)
	}
	for _, ns := range policy.denyNS {
		if ns.Matches(candidate) {
			return reject(candidate, KindDenied, fmt.Sprintf("namespace is denied by %q", ns.Raw), ns.Raw)
		}
	}

	if raw, ok := policy.allowExact[candidate]; ok {
		return admit(candidate, raw)
	}
	for _, ns := range policy.allowNS {
		if ns.Matches(candidate) {
			return admit(candidate, ns.Raw)
		}
	}

	return reject(candidate, KindNotAllowed, "type is not in the allow-list", "")
}

// Unrestricted admits every candidate. It exists to demonstrate insecure
// deserialization and must never back a secure endpoint.
type Unrestricted struct{}

// Evaluate admits candidate unconditionally.
func (Unrestricted) Evaluate(candidate string) Decision {
	return admit(candidate, "unrestricted")
}
