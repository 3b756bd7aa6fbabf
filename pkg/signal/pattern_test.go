package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternMatch(t *testing.T) {
	cases := []struct {
		pattern Pattern
		name    string
		want    bool
	}{
		{"workflow:start", "workflow:start", true},
		{"workflow:start", "workflow:stop", false},
		{"workflow:*", "workflow:start", true},
		{"workflow:*", "workflow:anything", true},
		{"workflow:*", "plan:created", false},
		// Wildcards are segment-bounded: "workflow:*" must not match a
		// three-segment name.
		{"workflow:*", "workflow:start:extra", false},
		{"*", "workflow:start", true},
		{"*", "plan:created", true},
		{"*", "state:plan:changed", true},
		{"state:*:changed", "state:plan:changed", true},
		{"state:*:changed", "state:plan:created", false},
	}

	for _, c := range cases {
		got := c.pattern.Match(c.name)
		assert.Equalf(t, c.want, got, "pattern %q against name %q", c.pattern, c.name)
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []Pattern{"workflow:*", "plan:created"}
	assert.True(t, MatchAny(patterns, "workflow:start"))
	assert.True(t, MatchAny(patterns, "plan:created"))
	assert.False(t, MatchAny(patterns, "task:done"))
}

func TestValidatePattern(t *testing.T) {
	assert.True(t, ValidatePattern("workflow:*"))
	assert.True(t, ValidatePattern("*"))
	assert.False(t, ValidatePattern(""))
}
