// Package sim replays recorded admission decisions against a candidate
// policy and reports which ones would change.
package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry represents one recorded decision that the candidate policy changes.
type DiffEntry struct {
	Timestamp   string `json:"ts"`
	RequestID   string `json:"request_id"`
	Source      string `json:"source,omitempty"`
	Type        string `json:"type"`
	OldDecision string `json:"old_decision"`
	NewDecision string `json:"new_decision"`
	OldKind     string `json:"old_kind,omitempty"`
	NewKind     string `json:"new_kind,omitempty"`
	OldReason   string `json:"old_reason,omitempty"`
	NewReason   string `json:"new_reason,omitempty"`
}

// SimResult holds the complete simulation output.
type SimResult struct {
	PolicyPath    string      `json:"policy_path"`
	PolicyHash    string      `json:"policy_hash"`
	TotalChecked  int         `json:"total_checked"`
	Skipped       int         `json:"skipped"`
	Changed       int         `json:"changed"`
	NewlyBlocked  int         `json:"newly_blocked"`
	NewlyAdmitted int         `json:"newly_admitted"`
	Changes       []DiffEntry `json:"changes"`
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded decisions...\n", r.PolicyPath, r.TotalChecked)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		ts := d.Timestamp
		if len(ts) >= 19 {
			ts = ts[11:19]
		}
		typ := d.Type
		if len(typ) > 48 {
			typ = typ[:45] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  %s  %-48s %s -> %s\n", ts, typ, d.OldDecision, d.NewDecision)
	}

	fmt.Fprintf(&b, "\n%d of %d decisions changed.", r.Changed, r.TotalChecked)
	if r.NewlyBlocked > 0 || r.NewlyAdmitted > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d newly admitted.", r.NewlyBlocked, r.NewlyAdmitted)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
