package signal

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is a subscription pattern over colon-delimited signal names.
// "workflow:*" matches any signal starting with "workflow:"; "*" matches
// everything. Matching is prefix-based on colon segments: wildcards do
// not span segments, matching exactly one segment per "*" the way a
// single path component does in a glob.
type Pattern string

// toGlob rewrites a colon-delimited pattern into the slash-delimited glob
// doublestar understands, so segment-bounded wildcarding ("workflow:*"
// matching "workflow:start" but not "workflow:start:extra") falls out of
// doublestar's own path-segment semantics for free instead of a
// hand-rolled splitter.
func toGlob(s string) string {
	if s == "*" {
		// A bare "*" must match every signal, including multi-segment
		// names, so it maps to doublestar's "match-everything" form.
		return "**"
	}
	return strings.ReplaceAll(s, ":", "/")
}

// Match reports whether name satisfies the pattern.
func (p Pattern) Match(name string) bool {
	ok, err := doublestar.Match(toGlob(string(p)), toGlob(name))
	if err != nil {
		return false
	}
	return ok
}

// MatchAny reports whether name satisfies any of the given patterns.
func MatchAny(patterns []Pattern, name string) bool {
	for _, p := range patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// ValidatePattern reports whether s is syntactically usable as a Pattern.
// Empty patterns are invalid; everything else doublestar can compile is
// accepted (validated eagerly so a malformed pattern in an agent
// definition fails at load time, not at first dispatch).
func ValidatePattern(s string) bool {
	if s == "" {
		return false
	}
	_, err := doublestar.Match(toGlob(s), "probe:probe")
	return err == nil
}
