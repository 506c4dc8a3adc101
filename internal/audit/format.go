package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Decision values written by the engine. Payload-level failures that never
// reached the gate are recorded as DecisionError.
const (
	DecisionAdmit  = "admit"
	DecisionReject = "reject"
	DecisionError  = "error"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return "No entries found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Audit: %s–%s UTC\n",
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")
	for _, e := range result.Entries {
		b.WriteString(FormatEntry(e))
	}
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatEntry renders one entry as a timeline line.
func FormatEntry(e AuditEntry) string {
	via := e.Source
	if e.Format != "" {
		via = e.Format + "/" + e.Mode
	}
	typ := e.Type
	if typ == "" {
		typ = "-"
	}
	line := fmt.Sprintf("%-10s %-7s %-16s %-44s", formatTimeOnly(e.Timestamp),
		strings.ToUpper(e.Decision), truncate(via, 16), truncate(typ, 44))
	if e.Reason != "" {
		line += "  " + e.Reason
	}
	return strings.TrimRight(line, " ") + "\n"
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{fmt.Sprintf("%d admit", s.AdmitCount), fmt.Sprintf("%d reject", s.RejectCount)}
	if s.ErrorCount > 0 {
		parts = append(parts, fmt.Sprintf("%d error", s.ErrorCount))
	}
	out := fmt.Sprintf("Summary: %s", strings.Join(parts, ", "))

	if len(s.Kinds) > 0 {
		kinds := make([]string, 0, len(s.Kinds))
		for k, n := range s.Kinds {
			kinds = append(kinds, fmt.Sprintf("%s=%d", k, n))
		}
		sort.Strings(kinds)
		out += " | " + strings.Join(kinds, " ")
	}
	return out + "\n"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
