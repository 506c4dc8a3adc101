package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// ReplayFilter selects entries. Zero fields match everything.
type ReplayFilter struct {
	RequestID string
	Decision  string
	Type      string
	From      time.Time
	To        time.Time
}

func (f ReplayFilter) match(e AuditEntry) bool {
	if f.RequestID != "" && e.RequestID != f.RequestID {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && ts.After(f.To) {
		return false
	}
	return true
}

// ReplaySummary holds decision counts for the replayed entries.
type ReplaySummary struct {
	Total          int            `json:"total"`
	AdmitCount     int            `json:"admit_count"`
	RejectCount    int            `json:"reject_count"`
	ErrorCount     int            `json:"error_count"`
	Kinds          map[string]int `json:"kinds,omitempty"`
	RejectedTypes  []string       `json:"rejected_types,omitempty"`
	FirstTimestamp string         `json:"first_timestamp"`
	LastTimestamp  string         `json:"last_timestamp"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Filter  ReplayFilter  `json:"-"`
	Entries []AuditEntry  `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the log at path and returns entries matching filter.
// Malformed lines are skipped; use Verify to detect them.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{Filter: filter}
	rejected := map[string]bool{}

	scanner := newScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if !filter.match(entry) {
			continue
		}
		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry, rejected)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	for t := range rejected {
		result.Summary.RejectedTypes = append(result.Summary.RejectedTypes, t)
	}
	sort.Strings(result.Summary.RejectedTypes)
	return result, nil
}

func updateSummary(s *ReplaySummary, entry AuditEntry, rejected map[string]bool) {
	s.Total++
	switch entry.Decision {
	case DecisionAdmit:
		s.AdmitCount++
	case DecisionReject:
		s.RejectCount++
		if entry.Type != "" {
			rejected[entry.Type] = true
		}
	default:
		s.ErrorCount++
	}
	if entry.Kind != "" {
		if s.Kinds == nil {
			s.Kinds = map[string]int{}
		}
		s.Kinds[entry.Kind]++
	}
	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}

// Tail returns the last n entries of the log at path, oldest first.
func Tail(path string, n int) ([]AuditEntry, error) {
	result, err := Replay(path, ReplayFilter{})
	if err != nil {
		return nil, err
	}
	entries := result.Entries
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}
