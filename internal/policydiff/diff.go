// Package policydiff compares two policy files.
package policydiff

import (
	"fmt"
	"sort"

	"github.com/ppiankov/typegate/internal/admission"
	"github.com/ppiankov/typegate/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// EntryChange represents an allow or deny entry that was added or removed.
type EntryChange struct {
	Type    string `json:"type"` // "added", "removed"
	List    string `json:"list"` // "allow", "deny"
	Entry   string `json:"entry"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policy configs.
type DiffResult struct {
	OldPath      string        `json:"old_path"`
	NewPath      string        `json:"new_path"`
	Changes      []Change      `json:"changes"`
	EntryChanges []EntryChange `json:"entry_changes"`
	HasChanges   bool          `json:"has_changes"`
}

// Diff compares two policy configs and returns the differences.
// Entries are compared in canonical form, so "a.b." and "a.b.*" are equal.
func Diff(old, new *policy.Config) *DiffResult {
	r := &DiffResult{}

	diffEntries(r, "allow", old.Allow, new.Allow)
	diffEntries(r, "deny", old.Deny, new.Deny)

	diffString(r, "json.type_property", old.JSON.TypeProperty, new.JSON.TypeProperty)
	diffString(r, "yaml.root_type", old.YAML.RootType, new.YAML.RootType)

	diffInt(r, "limits.max_depth", int64(old.Limits.MaxDepth), int64(new.Limits.MaxDepth))
	diffInt(r, "limits.max_payload_bytes", old.Limits.MaxPayloadBytes, new.Limits.MaxPayloadBytes)

	r.HasChanges = len(r.Changes) > 0 || len(r.EntryChanges) > 0
	return r
}

func diffString(r *DiffResult, field, old, new string) {
	if old != new {
		r.Changes = append(r.Changes, Change{Field: field, Old: old, New: new})
	}
}

// Lower limits are stricter.
func diffInt(r *DiffResult, field string, old, new int64) {
	if old == new {
		return
	}
	comment := "looser"
	if new < old {
		comment = "stricter"
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     fmt.Sprintf("%d", old),
		New:     fmt.Sprintf("%d", new),
		Comment: comment,
	})
}

func diffEntries(r *DiffResult, list string, oldEntries, newEntries []string) {
	oldSet := canonicalSet(oldEntries)
	newSet := canonicalSet(newEntries)

	for _, e := range sortedKeys(newSet) {
		if !oldSet[e] {
			r.EntryChanges = append(r.EntryChanges, EntryChange{
				Type: "added", List: list, Entry: e, Comment: entryComment(list, true),
			})
		}
	}
	for _, e := range sortedKeys(oldSet) {
		if !newSet[e] {
			r.EntryChanges = append(r.EntryChanges, EntryChange{
				Type: "removed", List: list, Entry: e, Comment: entryComment(list, false),
			})
		}
	}
}

// Adding to allow or removing from deny admits more.
func entryComment(list string, added bool) string {
	if (list == "allow") == added {
		return "looser"
	}
	return "stricter"
}

func canonicalSet(entries []string) map[string]bool {
	set := make(map[string]bool, len(entries))
	for _, e := range entries {
		if p, err := admission.ParsePattern(e); err == nil {
			set[p.String()] = true
		} else {
			set[e] = true
		}
	}
	return set
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
