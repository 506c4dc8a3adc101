package admission

import "sync/atomic"

// Gate holds the active Policy behind an atomic pointer. Evaluations load the
// snapshot once and never observe a partially replaced policy.
type Gate struct {
	policy atomic.Pointer[Policy]
}

// NewGate returns a Gate serving p. A nil p leaves the gate fail-closed until Swap.
func NewGate(p *Policy) *Gate {
	g := &Gate{}
	if p != nil {
		g.policy.Store(p)
	}
	return g
}

// Evaluate decides candidate against the current snapshot.
func (g *Gate) Evaluate(candidate string) Decision {
	return Evaluate(candidate, g.Snapshot())
}

// Snapshot returns the current policy. Callers that evaluate several
// candidates for one request should evaluate them all against one snapshot.
func (g *Gate) Snapshot() *Policy {
	if g == nil {
		return nil
	}
	return g.policy.Load()
}

// Swap installs p and returns the previous policy.
func (g *Gate) Swap(p *Policy) *Policy {
	return g.policy.Swap(p)
}
