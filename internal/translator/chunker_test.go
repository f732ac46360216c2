package translator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-translator/internal/masker"
)

func assertReassembles(t *testing.T, content string, chunks []string) {
	t.Helper()
	assert.Equal(t, content, strings.Join(chunks, ""), "chunk concatenation must reproduce the input exactly")
	for i, c := range chunks {
		assert.NotEmpty(t, c, "chunk %d must not be empty", i)
	}
}

func TestSplitSmallInputIsSingleChunk(t *testing.T) {
	content := "short text"
	chunks := SplitIntoChunks(content, 4000)
	assert.Equal(t, []string{content}, chunks)
}

func TestSplitAtSectionBoundaries(t *testing.T) {
	content := "\\section{One}\n" + strings.Repeat("alpha ", 40) + "\n" +
		"\\section{Two}\n" + strings.Repeat("beta ", 40) + "\n" +
		"\\subsection{Two point one}\n" + strings.Repeat("gamma ", 35) + "\n"

	chunks := SplitIntoChunks(content, 300)
	assertReassembles(t, content, chunks)
	require.Greater(t, len(chunks), 1)
	// later chunks begin at sectioning commands
	for _, c := range chunks[1:] {
		assert.True(t, strings.HasPrefix(c, `\section`) || strings.HasPrefix(c, `\subsection`),
			"chunk should start at a section boundary: %q", c[:20])
	}
}

func TestSplitAtParagraphBreaks(t *testing.T) {
	para := strings.Repeat("word ", 30) + "\n\n"
	content := strings.Repeat(para, 6)

	chunks := SplitIntoChunks(content, 400)
	assertReassembles(t, content, chunks)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 400)
	}
}

func TestSplitFallsBackToLines(t *testing.T) {
	// one giant paragraph with no blank lines
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString(strings.Repeat("x", 60))
		sb.WriteString("\n")
	}
	content := sb.String()

	chunks := SplitIntoChunks(content, 200)
	assertReassembles(t, content, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 200)
		assert.True(t, strings.HasSuffix(c, "\n"), "line split cuts at line boundaries")
	}
}

func TestSplitOversizeLineBecomesOwnChunk(t *testing.T) {
	long := strings.Repeat("y", 500)
	content := "a\n" + long + "\nb\n"

	chunks := SplitIntoChunks(content, 100)
	assertReassembles(t, content, chunks)
	found := false
	for _, c := range chunks {
		if strings.Contains(c, long) {
			found = true
			assert.Equal(t, long+"\n", c, "an oversize line is not torn apart")
		}
	}
	assert.True(t, found)
}

func TestSplitNeverTearsPlaceholderTokens(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 120; i++ {
		sb.WriteString("prose before ")
		sb.WriteString(masker.Token(i))
		sb.WriteString(" prose after\n")
	}
	content := sb.String()

	chunks := SplitIntoChunks(content, 150)
	assertReassembles(t, content, chunks)

	total := 0
	for _, c := range chunks {
		total += len(masker.FindTokens(c))
	}
	assert.Equal(t, 120, total, "every token must survive whole inside some chunk")
}

func TestSplitSectionInMiddleOfLineIgnored(t *testing.T) {
	// \section not at start of line is not a cut point
	content := "text \\section{inline} more\n" + strings.Repeat("z", 50) + "\n"
	chunks := SplitIntoChunks(content, 40)
	assertReassembles(t, content, chunks)
}
