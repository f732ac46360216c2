package critic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxiv-translator/internal/masker"
)

func mappingFor(tokens ...int) []masker.Entry {
	m := make([]masker.Entry, len(tokens))
	for i, n := range tokens {
		m[i] = masker.Entry{Token: masker.Token(n), Tag: "math-inline", Original: "$x$"}
	}
	return m
}

func TestVerifyPass(t *testing.T) {
	mapping := mappingFor(0, 1)
	original := "prose " + masker.Token(0) + " middle " + masker.Token(1) + " end"
	translated := "译文 " + masker.Token(0) + " 中间 " + masker.Token(1) + " 结束"

	v := Verify(mapping, original, translated)
	assert.True(t, v.Pass)
	assert.Empty(t, v.Violations)
}

func TestVerifyReorderedPlaceholdersStillPass(t *testing.T) {
	mapping := mappingFor(0, 1)
	original := masker.Token(0) + " then " + masker.Token(1)
	translated := masker.Token(1) + " 先于 " + masker.Token(0)

	v := Verify(mapping, original, translated)
	assert.True(t, v.Pass, "word order changes are legitimate in translation")
}

func TestVerifyMissingPlaceholder(t *testing.T) {
	mapping := mappingFor(0, 1)
	original := masker.Token(0) + " and " + masker.Token(1)
	translated := masker.Token(0) + " 只有一个"

	v := Verify(mapping, original, translated)
	require.False(t, v.Pass)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, MissingPlaceholder, v.Violations[0].Kind)
	assert.Equal(t, masker.Token(1), v.Violations[0].Token)
}

func TestVerifyDuplicatedPlaceholder(t *testing.T) {
	mapping := mappingFor(0)
	original := "one " + masker.Token(0)
	translated := masker.Token(0) + " 重复 " + masker.Token(0)

	v := Verify(mapping, original, translated)
	require.False(t, v.Pass)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, DuplicatedPlaceholder, v.Violations[0].Kind)
}

func TestVerifyUnknownPlaceholder(t *testing.T) {
	mapping := mappingFor(0)
	original := "x " + masker.Token(0)
	translated := masker.Token(0) + " 幻影 " + masker.Token(42)

	v := Verify(mapping, original, translated)
	require.False(t, v.Pass)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, UnknownPlaceholder, v.Violations[0].Kind)
	assert.Equal(t, masker.Token(42), v.Violations[0].Token)
}

func TestVerifyEnumeratesAllViolations(t *testing.T) {
	mapping := mappingFor(0, 1, 2)
	original := masker.Token(0) + " " + masker.Token(1) + " " + masker.Token(2)
	// 0 missing, 1 duplicated, 7 unknown
	translated := masker.Token(1) + " " + masker.Token(1) + " " + masker.Token(2) + " " + masker.Token(7)

	v := Verify(mapping, original, translated)
	require.False(t, v.Pass)
	assert.Len(t, v.Violations, 3, "every violation is enumerated, not just the first")
	assert.Equal(t, []ViolationKind{DuplicatedPlaceholder, MissingPlaceholder, UnknownPlaceholder}, v.Kinds())
}

func TestVerifyBraceBalanceChanged(t *testing.T) {
	mapping := mappingFor(0)
	original := `\textbf{bold} ` + masker.Token(0)
	translated := `\textbf{粗体 ` + masker.Token(0)

	v := Verify(mapping, original, translated)
	require.False(t, v.Pass)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, UnbalancedBraces, v.Violations[0].Kind)
}

func TestVerifyToleratesInheritedImbalance(t *testing.T) {
	// a chunk boundary can split a group; verification only requires the
	// translation to carry the same net balance as its source
	mapping := mappingFor(0)
	original := `\emph{start of a group ` + masker.Token(0)
	translated := `\emph{某组的开头 ` + masker.Token(0)

	v := Verify(mapping, original, translated)
	assert.True(t, v.Pass)
}

func TestVerifyIgnoresEscapedBraces(t *testing.T) {
	v := Verify(nil, `a \{ literal`, `字面 \{ 的`)
	assert.True(t, v.Pass)
}

func TestVerifyEnvironmentDropped(t *testing.T) {
	original := `\begin{itemize}\item a\end{itemize}`
	translated := `\begin{itemize}\item 甲`

	v := Verify(nil, original, translated)
	require.False(t, v.Pass)
	kinds := v.Kinds()
	assert.Contains(t, kinds, EnvironmentMismatch)
}

func TestVerifyEnvironmentRenamed(t *testing.T) {
	original := `\begin{itemize}x\end{itemize}`
	translated := `\begin{enumerate}x\end{enumerate}`

	v := Verify(nil, original, translated)
	require.False(t, v.Pass)
	// both the dropped and the invented environment are reported
	var mismatches int
	for _, vi := range v.Violations {
		if vi.Kind == EnvironmentMismatch {
			mismatches++
		}
	}
	assert.Equal(t, 2, mismatches)
}

func TestVerifyDeterministicOrdering(t *testing.T) {
	mapping := mappingFor(0, 1, 2)
	original := masker.Token(0) + " " + masker.Token(1) + " " + masker.Token(2)
	translated := "nothing left"

	first := Verify(mapping, original, translated)
	second := Verify(mapping, original, translated)
	assert.Equal(t, first, second)

	// missing placeholders come back in mapping order
	require.Len(t, first.Violations, 3)
	for i, vi := range first.Violations {
		assert.Equal(t, masker.Token(i), vi.Token)
	}
}

func TestPlaceholderViolationsFilter(t *testing.T) {
	v := Verdict{Violations: []Violation{
		{Kind: MissingPlaceholder, Token: masker.Token(0)},
		{Kind: UnbalancedBraces},
		{Kind: UnknownPlaceholder, Token: masker.Token(5)},
		{Kind: EnvironmentMismatch},
	}}
	got := v.PlaceholderViolations()
	require.Len(t, got, 2)
	assert.Equal(t, MissingPlaceholder, got[0].Kind)
	assert.Equal(t, UnknownPlaceholder, got[1].Kind)
}
