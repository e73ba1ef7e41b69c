package filetracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_MarkAndHasSeen(t *testing.T) {
	tr := New()
	assert.False(t, tr.HasSeen("main.go"))
	tr.MarkSeen("main.go")
	assert.True(t, tr.HasSeen("main.go"))
}

func TestTracker_VerifySymbolUntrackedIsTrue(t *testing.T) {
	tr := New()
	assert.True(t, tr.VerifySymbol("main.go", "main", "func main() {}"))
}

func TestTracker_VerifySymbolDetectsDrift(t *testing.T) {
	tr := New()
	tr.RecordSymbol("main.go", "main", "func main() {}", 3, 5, "extract")
	assert.True(t, tr.VerifySymbol("main.go", "main", "func main() {}"))
	assert.False(t, tr.VerifySymbol("main.go", "main", "func main() { println(1) }"))
}

func TestTracker_SymbolHashIgnoresTrailingWhitespace(t *testing.T) {
	tr := New()
	tr.RecordSymbol("main.go", "main", "func main() {\n\treturn\n}", 1, 3, "extract")
	assert.True(t, tr.VerifySymbol("main.go", "main", "func main() {   \n\treturn\t\n}"))
}

func TestTracker_SymbolRecordCarriesSpanAndSource(t *testing.T) {
	tr := New()
	tr.RecordSymbol("main.go", "main", "func main() {}", 10, 14, "extract")

	rec, ok := tr.Symbol("main.go", "main")
	require.True(t, ok)
	assert.Equal(t, 10, rec.StartLine)
	assert.Equal(t, 14, rec.EndLine)
	assert.Equal(t, "extract", rec.SourceTag)
	assert.False(t, rec.Timestamp.IsZero())
}

func TestTracker_ForgetClearsPathAndSymbols(t *testing.T) {
	tr := New()
	tr.MarkSeen("main.go")
	tr.RecordSymbol("main.go", "main", "func main() {}", 1, 1, "extract")

	tr.Forget("main.go")
	assert.False(t, tr.HasSeen("main.go"))
	assert.True(t, tr.VerifySymbol("main.go", "main", "anything"))
}

func TestTracker_InvalidateSymbolsKeepsPathSeen(t *testing.T) {
	tr := New()
	tr.MarkSeen("main.go")
	tr.RecordSymbol("main.go", "main", "func main() {}", 1, 1, "extract")

	tr.InvalidateSymbols("main.go")
	assert.True(t, tr.HasSeen("main.go"))
	_, ok := tr.Symbol("main.go", "main")
	assert.False(t, ok)
}

func TestTracker_IngestOutputMarksHeaderedPaths(t *testing.T) {
	tr := New()
	out := "File: src/a.go\nsome content\n--- src/b.go ---\nmore content\n"
	seen := tr.IngestOutput(out, "/work")

	require.Len(t, seen, 2)
	assert.True(t, tr.HasSeen("/work/src/a.go"))
	assert.True(t, tr.HasSeen("/work/src/b.go"))
}

func TestTracker_CheckBeforeEdit(t *testing.T) {
	tr := New()
	ok, reason := tr.CheckBeforeEdit("main.go", "", "")
	assert.False(t, ok)
	assert.Contains(t, reason, "not seen")

	tr.MarkSeen("main.go")
	tr.RecordSymbol("main.go", "main", "func main() {}", 1, 1, "extract")

	ok, _ = tr.CheckBeforeEdit("main.go", "main", "func main() {}")
	assert.True(t, ok)

	ok, reason = tr.CheckBeforeEdit("main.go", "main", "func main() { changed() }")
	assert.False(t, ok)
	assert.Contains(t, reason, "stale")
}
