package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	for _, list := range []string{"allow", "deny"} {
		entries := filterEntries(r.EntryChanges, list)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %s:\n", strings.ToUpper(list[:1])+list[1:])
		for _, ec := range entries {
			sign := "+"
			if ec.Type == "removed" {
				sign = "-"
			}
			fmt.Fprintf(&b, "    %s %s", sign, ec.Entry)
			if ec.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", ec.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(r.Changes) > 0 {
		b.WriteString("\n  Settings:\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "    %-26s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func filterEntries(changes []EntryChange, list string) []EntryChange {
	var out []EntryChange
	for _, c := range changes {
		if c.List == list {
			out = append(out, c)
		}
	}
	return out
}
