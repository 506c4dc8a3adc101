package admission

import (
	"fmt"
	"strings"
)

// MaxIdentifierLen bounds candidate identifiers. Longer input is malformed.
const MaxIdentifierLen = 512

// Separator divides namespace segments.
const Separator = '.'

// ValidIdentifier reports whether s is a dot-separated identifier whose
// segments start with a letter, '_' or '$' and continue with letters,
// digits, '_' or '$'.
//
// Letters are ASCII only. This is stricter than Java, which also accepts
// Unicode letters in identifiers: a non-ASCII class name is rejected as
// malformed, so lookalike characters can never match an allow-list entry.
func ValidIdentifier(s string) bool {
	if s == "" || len(s) > MaxIdentifierLen {
		return false
	}
	segStart := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == Separator:
			if segStart {
				return false // empty segment
			}
			segStart = true
		case isIdentStart(c):
			segStart = false
		case isDigit(c):
			if segStart {
				return false
			}
		default:
			return false
		}
	}
	return !segStart
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// Pattern is a parsed policy entry: an exact type or a namespace.
type Pattern struct {
	Raw       string
	Name      string
	Namespace bool
}

// ParsePattern parses a policy entry. "ns.*" and "ns." name a namespace;
// anything else names one exact type.
func ParsePattern(raw string) (Pattern, error) {
	entry := strings.TrimSpace(raw)
	p := Pattern{Raw: raw, Name: entry}
	switch {
	case strings.HasSuffix(entry, ".*"):
		p.Name = strings.TrimSuffix(entry, ".*")
		p.Namespace = true
	case strings.HasSuffix(entry, "."):
		p.Name = strings.TrimSuffix(entry, ".")
		p.Namespace = true
	}
	if !ValidIdentifier(p.Name) {
		return Pattern{}, fmt.Errorf("invalid policy entry %q", raw)
	}
	return p, nil
}

// String renders the pattern in canonical form.
func (p Pattern) String() string {
	if p.Namespace {
		return p.Name + ".*"
	}
	return p.Name
}

// Matches reports whether candidate falls under the pattern. Namespace
// matches are anchored at a segment boundary, so "a.b.*" matches "a.b.C"
// but not "a.bc.C" or "a.b" itself.
func (p Pattern) Matches(candidate string) bool {
	if !p.Namespace {
		return candidate == p.Name
	}
	n := len(p.Name)
	return len(candidate) > n+1 &&
		strings.HasPrefix(candidate, p.Name) &&
		candidate[n] == Separator
}
