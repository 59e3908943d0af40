package ssml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSentences(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "single", input: "One sentence", expected: []string{"One sentence"}},
		{name: "terminals", input: "One. Two! Three? Four", expected: []string{"One.", "Two!", "Three?", "Four"}},
		{name: "closing quote", input: `He said "Stop." Then left.`, expected: []string{`He said "Stop."`, "Then left."}},
		{name: "closing bracket", input: "(Really?) Yes.", expected: []string{"(Really?)", "Yes."}},
		{name: "no space after mark", input: "Version 1.2 ships.", expected: []string{"Version 1.2 ships."}},
		{name: "ellipsis", input: "Wait... what?", expected: []string{"Wait...", "what?"}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.expected, splitSentences(testCase.input))
		})
	}
}

func TestHardSlice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"abcd", "efgh", "ij"}, hardSlice("abcdefghij", 4))
	assert.Equal(t, []string{"a&amp;", "&lt;b"}, hardSlice("a&amp;&lt;b", 6))
	assert.Equal(t, []string{"&amp;", "&amp;"}, hardSlice("&amp;&amp;", 3))
	assert.Equal(t, []string{" a ", "b "}, hardSlice(" a b ", 3))

	value := strings.Repeat("x&gt;é ", 30)
	assert.Equal(t, value, strings.Join(hardSlice(value, 7), ""))
}

func TestSliceWidth(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 2950, sliceWidth(3000))
	assert.Equal(t, 200, sliceWidth(250))
	assert.Equal(t, 16, sliceWidth(20))
}
