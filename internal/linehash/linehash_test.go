package linehash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_IsDeterministic(t *testing.T) {
	assert.Equal(t, Hash("package main"), Hash("package main"))
}

func TestHash_DiffersForDifferentLines(t *testing.T) {
	assert.NotEqual(t, Hash("package main"), Hash("package other"))
}

func TestAnnotateAndRender(t *testing.T) {
	content := "line one\nline two\nline three"
	lines := Annotate(content)
	if assert.Len(t, lines, 3) {
		assert.Equal(t, 1, lines[0].Number)
		assert.Equal(t, "line one", lines[0].Content)
	}

	rendered := Render(lines)
	assert.Contains(t, rendered, "line one")
	assert.Contains(t, rendered, "1:")
}

func TestStripPrefixes_RemovesEchoedListingTags(t *testing.T) {
	annotated := Render(Annotate("alpha\nbeta\ngamma"))
	stripped := StripPrefixes(annotated)
	assert.Equal(t, "alpha\nbeta\ngamma", stripped)
}

func TestStripPrefixes_LeavesPlainTextAlone(t *testing.T) {
	text := "a | b\nplain line\nanother plain line\nyet another"
	assert.Equal(t, text, StripPrefixes(text))
}

func TestAnnotate_PreservesCRLF(t *testing.T) {
	lines := Annotate("one\r\ntwo\nthree")
	if assert.Len(t, lines, 3) {
		assert.Equal(t, "\r\n", lines[0].EOL)
		assert.Equal(t, "\n", lines[1].EOL)
		assert.Equal(t, "", lines[2].EOL)
		assert.Equal(t, "one", lines[0].Content)
	}
}

func TestHash_IgnoresWhitespace(t *testing.T) {
	assert.Equal(t, Hash("a + b"), Hash("a+b"))
	assert.Equal(t, Hash("\treturn x  "), Hash("return x"))
}

func TestVerifyLine(t *testing.T) {
	content := "alpha\nbeta\ngamma"
	h := Hash("beta")
	assert.True(t, VerifyLine(content, 2, h))
	assert.False(t, VerifyLine(content, 2, h+1))
	assert.False(t, VerifyLine(content, 10, h))
}
