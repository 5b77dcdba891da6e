package tone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStyleDescription(t *testing.T) {
	assert.Equal(t, "professional and business-like", StyleDescription("professional"))
	assert.Equal(t, "professional and business-like", StyleDescription(" Professional "))
	assert.Contains(t, StyleDescription("genz"), "ngl")

	// 未知标识透传
	assert.Equal(t, "like a medieval knight", StyleDescription("like a medieval knight"))
}

func TestAvailableStyles(t *testing.T) {
	styles := AvailableStyles()
	assert.Len(t, styles, 13)
	assert.Contains(t, styles, "professional")
	assert.Contains(t, styles, "genz")

	// 返回副本，修改不影响预设
	styles["professional"] = "mutated"
	assert.Equal(t, "professional and business-like", StyleDescription("professional"))
}

func TestStyleNames_Sorted(t *testing.T) {
	names := StyleNames()
	assert.Len(t, names, 13)
	assert.True(t, sortedStrings(names))
}

func sortedStrings(s []string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] > s[i] {
			return false
		}
	}
	return true
}

func TestBuildShiftSystemPrompt(t *testing.T) {
	p := buildShiftSystemPrompt("formal and polite", true, "email to a client")
	assert.Contains(t, p, "Rewrite the given text in a formal and polite tone")
	assert.Contains(t, p, "Preserve the original meaning")
	assert.Contains(t, p, "Context: email to a client")

	p = buildShiftSystemPrompt("casual", false, "")
	assert.NotContains(t, p, "Preserve the original meaning")
	assert.NotContains(t, p, "Context:")
	assert.True(t, strings.HasSuffix(p, "Ensure grammatical correctness"))
}

func TestBuildSuggestSystemPrompt(t *testing.T) {
	p := buildSuggestSystemPrompt("harsh", "")
	assert.Contains(t, p, "Current perceived tone: harsh")
	assert.NotContains(t, p, "Target audience")

	p = buildSuggestSystemPrompt("harsh", "executives")
	assert.Contains(t, p, "Target audience: executives")
}
