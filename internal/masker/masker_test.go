package masker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-translator/internal/types"
)

var roundTripSamples = []struct {
	name string
	text string
}{
	{"plain prose", "Nothing to protect here, just words.\n"},
	{"inline math", `The bound $x \le y$ holds whenever $y > 0$.`},
	{"display math", "Consider\n$$\\int_0^1 f(x)\\,dx = 1$$\nas normalization.\n"},
	{"citations", `Prior work \cite{a1} and \citep[see][]{a2} disagrees with \ref{sec:two}.`},
	{"equation env", "Intro.\n\\begin{equation}\n  a^2 + b^2 = c^2\n\\end{equation}\nOutro.\n"},
	{"nested tabular", `\begin{tabular}{cc}\begin{tabular}{c}x\end{tabular} & y\end{tabular}`},
	{"comment", "text % keep this comment verbatim\nmore text\n"},
	{"verb", `Run \verb|make -j4| to build.`},
	{"mixed", "\\section{Results}\nWe find $p < 0.05$ (see \\cite{stats}).\n% internal note\n\\begin{align*}\nx &= y\n\\end{align*}\n"},
	{"degraded tail", "prose then $unclosed math to the very end"},
	{"empty", ""},
}

func TestMaskUnmaskRoundTrip(t *testing.T) {
	for _, tc := range roundTripSamples {
		t.Run(tc.name, func(t *testing.T) {
			buf := Mask(tc.text)
			restored, err := buf.Unmask(buf.Masked)
			require.NoError(t, err)
			assert.Equal(t, tc.text, restored, "unmask(mask(text)) must reproduce the input byte for byte")
		})
	}
}

func TestMaskTokensAreUniqueAndSequential(t *testing.T) {
	text := `$a$ $a$ $a$ \cite{x} \cite{x}`
	buf := Mask(text)

	require.Len(t, buf.Mapping, 5)
	seen := map[string]bool{}
	for i, e := range buf.Mapping {
		assert.Equal(t, Token(i), e.Token, "tokens are assigned in span order")
		assert.False(t, seen[e.Token], "identical spans must still get distinct tokens")
		seen[e.Token] = true
	}
}

func TestMaskedTextContainsNoProtectedBytes(t *testing.T) {
	text := `Value $x_i$ from \cite{key} inside \begin{equation}e\end{equation}`
	buf := Mask(text)

	assert.NotContains(t, buf.Masked, "$")
	assert.NotContains(t, buf.Masked, `\cite`)
	assert.NotContains(t, buf.Masked, `\begin`)
	assert.Contains(t, buf.Masked, "Value ")
}

func TestMaskDegradedFlagPropagates(t *testing.T) {
	buf := Mask("prose $never closed")
	assert.True(t, buf.Degraded)

	buf = Mask("prose $a$ closed")
	assert.False(t, buf.Degraded)
}

func TestUnmaskSurvivesTokenReordering(t *testing.T) {
	text := `first $a$ then $b$ done`
	buf := Mask(text)
	require.Len(t, buf.Mapping, 2)

	// a translator may legally move placeholders around
	reordered := buf.Mapping[1].Token + " swapped " + buf.Mapping[0].Token
	restored, err := buf.Unmask(reordered)
	require.NoError(t, err)
	assert.Equal(t, "$b$ swapped $a$", restored)
}

func TestUnmaskUnknownTokenFails(t *testing.T) {
	buf := Mask(`only $one$ span`)
	corrupted := buf.Masked + " " + Token(99)

	_, err := buf.Unmask(corrupted)
	require.Error(t, err)
	assert.Equal(t, types.ErrReconstruction, types.CodeOf(err))
}

func TestUnmaskDroppedTokenFails(t *testing.T) {
	buf := Mask(`keep $a$ and $b$ both`)
	require.Len(t, buf.Mapping, 2)

	dropped := strings.Replace(buf.Masked, buf.Mapping[1].Token, "", 1)
	_, err := buf.Unmask(dropped)
	require.Error(t, err)
	assert.Equal(t, types.ErrReconstruction, types.CodeOf(err))
}

func TestUnmaskDuplicatedTokenIsReplacedEverywhere(t *testing.T) {
	buf := Mask(`just $a$ here`)
	require.Len(t, buf.Mapping, 1)
	tok := buf.Mapping[0].Token

	restored, err := buf.Unmask(tok + " and again " + tok)
	require.NoError(t, err)
	assert.Equal(t, "$a$ and again $a$", restored)
}

func TestTokenFormat(t *testing.T) {
	tok := Token(7)
	assert.True(t, strings.HasPrefix(tok, tokenOpen))
	assert.True(t, strings.HasSuffix(tok, tokenClose))
	assert.Contains(t, tok, "M0007")
}

func TestFindTokens(t *testing.T) {
	text := "x " + Token(0) + " y " + Token(12) + " z"
	assert.Equal(t, []string{Token(0), Token(12)}, FindTokens(text))
	assert.Empty(t, FindTokens("no tokens at all"))
}

func TestFindTokensBeyondFourDigits(t *testing.T) {
	text := "a " + Token(9999) + " b " + Token(10000) + " c " + Token(123456)
	assert.Equal(t, []string{Token(9999), Token(10000), Token(123456)}, FindTokens(text))
}

func TestMaskUnmaskRoundTripPastTenThousandSpans(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10001; i++ {
		sb.WriteString("word $x$ ")
	}
	text := sb.String()

	buf := Mask(text)
	require.Len(t, buf.Mapping, 10001)
	assert.Equal(t, Token(10000), buf.Mapping[10000].Token)

	got, err := buf.Unmask(buf.Masked)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestTokensOrder(t *testing.T) {
	buf := Mask(`$a$ mid $b$ end $c$`)
	assert.Equal(t, []string{Token(0), Token(1), Token(2)}, buf.Tokens())
}

func TestSaveMapping(t *testing.T) {
	buf := Mask(`cite \cite{k} and math $m$`)
	path := filepath.Join(t.TempDir(), "unit.mapping.json")

	require.NoError(t, buf.SaveMapping(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	assert.Equal(t, buf.Mapping, entries)
}
