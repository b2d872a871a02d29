package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollapseWhitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello world", want: "hello world"},
		{name: "runs and tabs", in: "  hello \t\t world \n next ", want: "hello world next"},
		{name: "only whitespace", in: " \n\t ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseWhitespace(tt.in))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))

	long := strings.Repeat("a", 50)
	got := Truncate(long, 20)
	assert.LessOrEqual(t, len([]rune(got)), 20)
	assert.True(t, strings.HasSuffix(got, TruncationMarker))

	// A cap smaller than the marker still honors the cap.
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}

func TestCountImportantKeywords(t *testing.T) {
	assert.Equal(t, 0, CountImportantKeywords("nice weather today"))
	assert.Equal(t, 2, CountImportantKeywords("Why does this happen? Please explain."))
	assert.Equal(t, 2, CountImportantKeywords("what what"))
}
