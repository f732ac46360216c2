// Package masker reversibly replaces protected LaTeX spans with
// placeholder tokens that are inert to translation, and restores them
// afterwards with an exact round-trip guarantee.
package masker

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"arxiv-translator/internal/classifier"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

// Placeholder tokens are delimited by Unicode private-use code points,
// which cannot occur in prose or LaTeX command names. Byte-identical
// spans still get distinct tokens: the counter is monotonic, never a
// content hash.
const (
	tokenOpen  = ""
	tokenClose = ""
)

// Token counters are zero-padded to four digits but keep growing past
// 9999, so the pattern must accept any width.
var tokenPattern = regexp.MustCompile(tokenOpen + `M(\d{4,})` + tokenClose)

// Entry maps one placeholder token to the original span it replaced.
type Entry struct {
	Token    string `json:"token"`
	Tag      string `json:"tag"`
	Original string `json:"original"`
}

// MaskedBuffer is the result of masking one translation unit: the text
// with placeholders substituted and the ordered token mapping needed to
// reverse the substitution.
type MaskedBuffer struct {
	Masked   string  `json:"masked"`
	Mapping  []Entry `json:"mapping"`
	Degraded bool    `json:"degraded"`
}

// Token returns the placeholder string for index n.
func Token(n int) string {
	return fmt.Sprintf("%sM%04d%s", tokenOpen, n, tokenClose)
}

// Mask classifies text and replaces every protected span with a unique
// placeholder. Translatable spans pass through byte-for-byte.
func Mask(text string) *MaskedBuffer {
	res := classifier.Classify(text)

	var sb strings.Builder
	sb.Grow(len(text))
	buf := &MaskedBuffer{Degraded: res.Degraded}

	counter := 0
	for _, sp := range res.Spans {
		segment := text[sp.Start:sp.End]
		if sp.Kind == classifier.Translatable {
			sb.WriteString(segment)
			continue
		}
		tok := Token(counter)
		counter++
		buf.Mapping = append(buf.Mapping, Entry{Token: tok, Tag: sp.Tag, Original: segment})
		sb.WriteString(tok)
	}
	buf.Masked = sb.String()

	logger.Debug("masked buffer",
		logger.Int("contentLength", len(text)),
		logger.Int("placeholders", len(buf.Mapping)),
		logger.Bool("degraded", buf.Degraded))
	return buf
}

// Unmask substitutes every placeholder in masked with its original span.
// It fails with a RECONSTRUCTION_ERROR when masked references a token
// absent from the mapping, or when a mapping entry is never referenced.
// Both conditions indicate externally introduced corruption and are
// surfaced, never silently dropped.
func (b *MaskedBuffer) Unmask(masked string) (string, error) {
	byToken := make(map[string]Entry, len(b.Mapping))
	for _, e := range b.Mapping {
		byToken[e.Token] = e
	}

	seen := make(map[string]int, len(b.Mapping))
	var unknown []string

	out := tokenPattern.ReplaceAllStringFunc(masked, func(tok string) string {
		e, ok := byToken[tok]
		if !ok {
			unknown = append(unknown, tok)
			return tok
		}
		seen[tok]++
		return e.Original
	})

	if len(unknown) > 0 {
		return "", types.NewAppErrorWithDetails(types.ErrReconstruction,
			"masked text references unknown placeholders",
			fmt.Sprintf("%d unknown tokens", len(unknown)), nil)
	}
	var missing []string
	for _, e := range b.Mapping {
		if seen[e.Token] == 0 {
			missing = append(missing, e.Token)
		}
	}
	if len(missing) > 0 {
		return "", types.NewAppErrorWithDetails(types.ErrReconstruction,
			"mapping entries never referenced by masked text",
			fmt.Sprintf("%d unreferenced tokens", len(missing)), nil)
	}
	return out, nil
}

// Tokens returns the mapping's token strings in insertion order.
func (b *MaskedBuffer) Tokens() []string {
	out := make([]string, len(b.Mapping))
	for i, e := range b.Mapping {
		out[i] = e.Token
	}
	return out
}

// FindTokens extracts all placeholder tokens present in text, in order.
func FindTokens(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

// SaveMapping persists the buffer's mapping as a JSON audit artifact.
func (b *MaskedBuffer) SaveMapping(path string) error {
	data, err := json.MarshalIndent(b.Mapping, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal mask mapping", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write mask mapping", err)
	}
	return nil
}
