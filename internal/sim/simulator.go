package sim

import (
	"fmt"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/audit"
	"github.com/ppiankov/typegate/internal/policy"
)

// Simulate replays the admission decisions in an audit log against the policy
// at policyPath. Payload-level failures carry no type and are skipped.
func Simulate(logPath, policyPath string) (*SimResult, error) {
	cfg, hash, err := policy.LoadConfigWithHash(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	p, err := cfg.BuildPolicy(hash)
	if err != nil {
		return nil, err
	}

	log, err := audit.Replay(logPath, audit.ReplayFilter{})
	if err != nil {
		return nil, err
	}

	result := &SimResult{PolicyPath: policyPath, PolicyHash: hash}
	for _, entry := range log.Entries {
		if entry.Type == "" || entry.Decision == audit.DecisionError {
			result.Skipped++
			continue
		}
		result.TotalChecked++

		d := p.Evaluate(entry.Type)
		newDecision := string(d.Verdict)
		if newDecision == entry.Decision {
			continue
		}

		result.Changes = append(result.Changes, DiffEntry{
			Timestamp:   entry.Timestamp,
			RequestID:   entry.RequestID,
			Source:      entry.Source,
			Type:        entry.Type,
			OldDecision: entry.Decision,
			NewDecision: newDecision,
			OldKind:     entry.Kind,
			NewKind:     string(d.Kind),
			OldReason:   entry.Reason,
			NewReason:   d.Reason,
		})
		result.Changed++
		if d.Verdict == admission.Reject {
			result.NewlyBlocked++
		} else {
			result.NewlyAdmitted++
		}
	}

	return result, nil
}
