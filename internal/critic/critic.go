// Package critic verifies translated-but-still-masked text against the
// mask mapping that was produced before translation. It checks that the
// placeholder set is conserved exactly and that the translation did not
// disturb brace or environment balance in the prose. Verification is a
// pure function: no side effects, deterministic for identical inputs.
package critic

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"arxiv-translator/internal/masker"
)

// ViolationKind classifies a single verification failure.
type ViolationKind string

const (
	// MissingPlaceholder: a mapping token does not occur in the translation.
	MissingPlaceholder ViolationKind = "missing_placeholder"
	// DuplicatedPlaceholder: a mapping token occurs more than once.
	DuplicatedPlaceholder ViolationKind = "duplicated_placeholder"
	// UnknownPlaceholder: the translation contains a token absent from the mapping.
	UnknownPlaceholder ViolationKind = "unknown_placeholder"
	// UnbalancedBraces: the translation changed the net brace balance of the prose.
	UnbalancedBraces ViolationKind = "unbalanced_braces"
	// EnvironmentMismatch: \begin/\end pairs no longer match the original.
	EnvironmentMismatch ViolationKind = "environment_mismatch"
)

// Violation is one concrete verification failure.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Token  string        `json:"token,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// Verdict is the critic's result: pass/fail plus every violation found,
// not just the first.
type Verdict struct {
	Pass       bool        `json:"pass"`
	Violations []Violation `json:"violations,omitempty"`
}

// PlaceholderViolations returns the subset of violations that name a
// specific placeholder token, for the fixer's constrained re-generation.
func (v Verdict) PlaceholderViolations() []Violation {
	var out []Violation
	for _, vi := range v.Violations {
		switch vi.Kind {
		case MissingPlaceholder, DuplicatedPlaceholder, UnknownPlaceholder:
			out = append(out, vi)
		}
	}
	return out
}

// Kinds returns the sorted set of violation kinds present in the verdict.
func (v Verdict) Kinds() []ViolationKind {
	set := map[ViolationKind]bool{}
	for _, vi := range v.Violations {
		set[vi.Kind] = true
	}
	out := make([]ViolationKind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Verify checks placeholder conservation and structural balance of the
// translated masked text against the original masked text and mapping.
func Verify(mapping []masker.Entry, originalMasked, translatedMasked string) Verdict {
	var violations []Violation

	violations = append(violations, checkPlaceholders(mapping, translatedMasked)...)
	violations = append(violations, checkBraceBalance(originalMasked, translatedMasked)...)
	violations = append(violations, checkEnvironments(originalMasked, translatedMasked)...)

	return Verdict{Pass: len(violations) == 0, Violations: violations}
}

func checkPlaceholders(mapping []masker.Entry, translated string) []Violation {
	var violations []Violation

	known := make(map[string]bool, len(mapping))
	for _, e := range mapping {
		known[e.Token] = true
	}

	counts := map[string]int{}
	for _, tok := range masker.FindTokens(translated) {
		counts[tok]++
	}

	// mapping order keeps the verdict deterministic
	for _, e := range mapping {
		switch n := counts[e.Token]; {
		case n == 0:
			violations = append(violations, Violation{Kind: MissingPlaceholder, Token: e.Token,
				Detail: fmt.Sprintf("placeholder for %s span missing", e.Tag)})
		case n > 1:
			violations = append(violations, Violation{Kind: DuplicatedPlaceholder, Token: e.Token,
				Detail: fmt.Sprintf("placeholder occurs %d times", n)})
		}
	}

	var extras []string
	for tok := range counts {
		if !known[tok] {
			extras = append(extras, tok)
		}
	}
	sort.Strings(extras)
	for _, tok := range extras {
		violations = append(violations, Violation{Kind: UnknownPlaceholder, Token: tok,
			Detail: "token not present in mapping"})
	}
	return violations
}

// braceBalance counts unescaped { and } in text with placeholder tokens
// removed, returning open and close totals.
func braceBalance(text string) (open, close int) {
	stripped := stripTokens(text)
	for i := 0; i < len(stripped); i++ {
		switch stripped[i] {
		case '\\':
			i++ // escaped character, including \{ and \}
		case '{':
			open++
		case '}':
			close++
		}
	}
	return open, close
}

func checkBraceBalance(original, translated string) []Violation {
	origOpen, origClose := braceBalance(original)
	trOpen, trClose := braceBalance(translated)

	// Compare balance against the source's own balance: a chunk boundary
	// may legitimately split a group, so absolute balance is not required,
	// only that translation preserved it.
	if origOpen-origClose != trOpen-trClose {
		return []Violation{{Kind: UnbalancedBraces,
			Detail: fmt.Sprintf("brace balance changed from %d to %d", origOpen-origClose, trOpen-trClose)}}
	}
	return nil
}

var envTagPattern = regexp.MustCompile(`\\(begin|end)\s*\{([^}]*)\}`)

// envCounts tallies \begin and \end occurrences per environment name.
func envCounts(text string) map[string][2]int {
	counts := map[string][2]int{}
	for _, m := range envTagPattern.FindAllStringSubmatch(stripTokens(text), -1) {
		c := counts[m[2]]
		if m[1] == "begin" {
			c[0]++
		} else {
			c[1]++
		}
		counts[m[2]] = c
	}
	return counts
}

func checkEnvironments(original, translated string) []Violation {
	origCounts := envCounts(original)
	trCounts := envCounts(translated)

	names := map[string]bool{}
	for n := range origCounts {
		names[n] = true
	}
	for n := range trCounts {
		names[n] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var violations []Violation
	for _, n := range sorted {
		if origCounts[n] != trCounts[n] {
			violations = append(violations, Violation{Kind: EnvironmentMismatch,
				Detail: fmt.Sprintf("environment %q: had %d begin/%d end, now %d begin/%d end",
					n, origCounts[n][0], origCounts[n][1], trCounts[n][0], trCounts[n][1])})
		}
	}
	return violations
}

func stripTokens(text string) string {
	toks := masker.FindTokens(text)
	if len(toks) == 0 {
		return text
	}
	out := text
	for _, t := range toks {
		out = strings.ReplaceAll(out, t, "")
	}
	return out
}
