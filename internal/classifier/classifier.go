// Package classifier identifies protected regions in LaTeX source text.
// It produces an ordered sequence of spans covering the whole buffer,
// each tagged as protected (math, citations, labels, opaque environments,
// verbatim code) or translatable prose.
//
// Classification runs in two passes: a structure-aware scan that parses
// recognized constructs with their nesting rules, and a pattern-based
// fallback over the remaining prose gaps that catches constructs the
// structural scan does not recognize. Protected text is never re-scanned.
package classifier

import (
	"regexp"
	"sort"
	"strings"

	"arxiv-translator/internal/logger"
)

// Kind tags a span as protected or translatable.
type Kind int

const (
	// Translatable spans are prose handed to the translator.
	Translatable Kind = iota
	// Protected spans must appear byte-for-byte in the output.
	Protected
)

// String returns the string representation of Kind
func (k Kind) String() string {
	if k == Protected {
		return "Protected"
	}
	return "Translatable"
}

// Span is one classified region of the input buffer. Spans are
// non-overlapping, ordered by Start, and together cover the buffer.
type Span struct {
	Kind  Kind
	Tag   string // construct tag, e.g. "math-inline", "env:equation", "macro:cite"
	Start int
	End   int
}

// Result is a full classification of a buffer.
type Result struct {
	Spans []Span
	// Degraded is set when malformed or unbalanced delimiters forced the
	// scanner to protect the remainder of the buffer instead of parsing it.
	Degraded bool
}

// opaqueEnvs are environments masked whole, wrapper included. Starred
// variants are folded onto their base name.
var opaqueEnvs = map[string]bool{
	"equation":    true,
	"align":       true,
	"alignat":     true,
	"gather":      true,
	"multline":    true,
	"eqnarray":    true,
	"math":        true,
	"displaymath": true,
	"array":       true,
	"tabular":     true,
	"tabularx":    true,
	"tikzpicture": true,
	"algorithm":   true,
	"algorithmic": true,
	"lstlisting":  true,
	"verbatim":    true,
	"minted":      true,
}

// protectedMacros are commands whose entire invocation, arguments
// included, is masked. Citations inside footnotes and similar nesting
// collapse into the outermost protected span by construction: the
// scanner never descends into text it has already protected.
var protectedMacros = map[string]bool{
	"cite":              true,
	"citep":             true,
	"citet":             true,
	"citealp":           true,
	"citeauthor":        true,
	"ref":               true,
	"cref":              true,
	"Cref":              true,
	"eqref":             true,
	"autoref":           true,
	"pageref":           true,
	"label":             true,
	"input":             true,
	"include":           true,
	"includegraphics":   true,
	"url":               true,
	"href":              true,
	"bibliography":      true,
	"bibliographystyle": true,
	"usepackage":        true,
	"documentclass":     true,
}

// Classify splits text into an ordered, gap-free span sequence.
// Malformed delimiters never abort the pass: the unparseable tail is
// classified protected and the result is flagged degraded.
func Classify(text string) Result {
	s := scanner{src: text}
	s.run()

	spans := fillGaps(text, s.protected)
	spans = fallbackPass(text, spans)

	if s.degraded {
		logger.Warn("degraded span classification",
			logger.Int("contentLength", len(text)),
			logger.Int("protectedSpans", len(s.protected)))
	}

	return Result{Spans: spans, Degraded: s.degraded}
}

// ProtectedSpans returns only the protected spans of a classification.
func (r Result) ProtectedSpans() []Span {
	var out []Span
	for _, sp := range r.Spans {
		if sp.Kind == Protected {
			out = append(out, sp)
		}
	}
	return out
}

type scanner struct {
	src       string
	protected []Span
	degraded  bool
}

func (s *scanner) run() {
	i := 0
	n := len(s.src)
	for i < n {
		c := s.src[i]
		switch {
		case c == '%':
			i = s.scanComment(i)
		case c == '$':
			i = s.scanDollarMath(i)
		case c == '\\':
			i = s.scanBackslash(i)
		default:
			i++
		}
	}
}

func (s *scanner) emit(tag string, start, end int) {
	s.protected = append(s.protected, Span{Kind: Protected, Tag: tag, Start: start, End: end})
}

// protectTail marks everything from start to the end of the buffer as a
// single protected span. Used when a construct never terminates.
func (s *scanner) protectTail(tag string, start int) int {
	s.emit(tag, start, len(s.src))
	s.degraded = true
	return len(s.src)
}

// scanComment protects from an unescaped % to end of line, newline excluded.
func (s *scanner) scanComment(i int) int {
	end := strings.IndexByte(s.src[i:], '\n')
	if end == -1 {
		s.emit("comment", i, len(s.src))
		return len(s.src)
	}
	s.emit("comment", i, i+end)
	return i + end + 1
}

func (s *scanner) scanDollarMath(i int) int {
	// $$ ... $$ display math
	if i+1 < len(s.src) && s.src[i+1] == '$' {
		close := indexUnescaped(s.src, i+2, "$$")
		if close == -1 {
			return s.protectTail("math-display", i)
		}
		s.emit("math-display", i, close+2)
		return close + 2
	}
	// $ ... $ inline math
	close := indexUnescaped(s.src, i+1, "$")
	if close == -1 {
		return s.protectTail("math-inline", i)
	}
	s.emit("math-inline", i, close+1)
	return close + 1
}

func (s *scanner) scanBackslash(i int) int {
	if i+1 >= len(s.src) {
		return i + 1
	}
	next := s.src[i+1]

	// escaped specials: \$ \% \\ \{ \} etc. stay translatable
	if !isLetter(next) && next != '[' && next != '(' {
		return i + 2
	}

	switch next {
	case '[':
		close := strings.Index(s.src[i+2:], `\]`)
		if close == -1 {
			return s.protectTail("math-display", i)
		}
		return s.emitFrom("math-display", i, i+2+close+2)
	case '(':
		close := strings.Index(s.src[i+2:], `\)`)
		if close == -1 {
			return s.protectTail("math-inline", i)
		}
		return s.emitFrom("math-inline", i, i+2+close+2)
	}

	name, after := scanMacroName(s.src, i+1)
	switch {
	case name == "begin":
		return s.scanEnvironment(i, after)
	case name == "verb":
		return s.scanVerb(i, after)
	case protectedMacros[name]:
		end, ok := scanMacroArgs(s.src, after)
		if !ok {
			return s.protectTail("macro:"+name, i)
		}
		s.emit("macro:"+name, i, end)
		return end
	default:
		// unrecognized command: the command token itself is prose-safe,
		// its brace groups are classified by the scan that continues
		// inside them
		return after
	}
}

// emitFrom records a protected span and resumes after it.
func (s *scanner) emitFrom(tag string, start, end int) int {
	s.emit(tag, start, end)
	return end
}

// scanEnvironment handles \begin{name}. Opaque and verbatim-like
// environments are protected whole, wrapper included, honoring nested
// \begin{name} of the same environment. Transparent environments
// (figure, table, itemize, ...) are left to the continuing scan so
// their prose is translated while nested protected constructs are not.
func (s *scanner) scanEnvironment(start, afterBegin int) int {
	name, afterName := scanBraceGroup(s.src, afterBegin)
	if name == "" {
		return afterBegin
	}
	base := strings.TrimSuffix(name, "*")
	if !opaqueEnvs[base] {
		return afterName
	}

	beginTok := `\begin{` + name + `}`
	endTok := `\end{` + name + `}`
	depth := 1
	pos := afterName
	for depth > 0 {
		nextBegin := strings.Index(s.src[pos:], beginTok)
		nextEnd := strings.Index(s.src[pos:], endTok)
		if nextEnd == -1 {
			return s.protectTail("env:"+name, start)
		}
		if nextBegin != -1 && nextBegin < nextEnd {
			depth++
			pos += nextBegin + len(beginTok)
			continue
		}
		depth--
		pos += nextEnd + len(endTok)
	}
	s.emit("env:"+name, start, pos)
	return pos
}

// scanVerb handles \verb<delim>...<delim> and \verb*.
func (s *scanner) scanVerb(start, after int) int {
	pos := after
	if pos < len(s.src) && s.src[pos] == '*' {
		pos++
	}
	if pos >= len(s.src) {
		return s.protectTail("verb", start)
	}
	delim := s.src[pos]
	close := strings.IndexByte(s.src[pos+1:], delim)
	if close == -1 {
		return s.protectTail("verb", start)
	}
	end := pos + 1 + close + 1
	s.emit("verb", start, end)
	return end
}

// scanMacroName reads a command name starting right after the backslash.
func scanMacroName(src string, pos int) (name string, after int) {
	i := pos
	for i < len(src) && isLetter(src[i]) {
		i++
	}
	return src[pos:i], i
}

// scanBraceGroup reads a single {…} group with flat content (environment
// names). Returns the inner text and the position after the closing brace.
func scanBraceGroup(src string, pos int) (string, int) {
	if pos >= len(src) || src[pos] != '{' {
		return "", pos
	}
	close := strings.IndexByte(src[pos:], '}')
	if close == -1 {
		return "", pos
	}
	return src[pos+1 : pos+close], pos + close + 1
}

// scanMacroArgs consumes an optional star plus any run of [..] and
// balanced {..} argument groups. TeX tolerates spaces and a single
// newline between a macro and its arguments, so each group may be
// preceded by such a gap; the gap is consumed only when an argument
// actually follows. Returns the end position and false when a brace
// group never closes.
func scanMacroArgs(src string, pos int) (int, bool) {
	i := pos
	if i < len(src) && src[i] == '*' {
		i++
	}
	for i < len(src) {
		j := skipArgGap(src, i)
		if j >= len(src) {
			return i, true
		}
		switch src[j] {
		case '[':
			close := strings.IndexByte(src[j:], ']')
			if close == -1 {
				return 0, false
			}
			i = j + close + 1
		case '{':
			end, ok := matchBrace(src, j)
			if !ok {
				return 0, false
			}
			i = end
		default:
			return i, true
		}
	}
	return i, true
}

// skipArgGap advances past spaces, tabs and at most one newline. A
// second newline is a paragraph break, which ends argument scanning.
func skipArgGap(src string, pos int) int {
	i := pos
	sawNewline := false
	for i < len(src) {
		switch src[i] {
		case ' ', '\t':
			i++
		case '\n':
			if sawNewline {
				return i
			}
			sawNewline = true
			i++
		default:
			return i
		}
	}
	return i
}

// matchBrace returns the position just past the brace group opening at
// pos, honoring nesting and escaped braces.
func matchBrace(src string, pos int) (int, bool) {
	depth := 0
	for j := pos; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1, true
			}
		}
	}
	return 0, false
}

// indexUnescaped finds tok in src at or after pos, skipping occurrences
// preceded by an odd number of backslashes.
func indexUnescaped(src string, pos int, tok string) int {
	for pos < len(src) {
		idx := strings.Index(src[pos:], tok)
		if idx == -1 {
			return -1
		}
		at := pos + idx
		backslashes := 0
		for j := at - 1; j >= 0 && src[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return at
		}
		pos = at + 1
	}
	return -1
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// fillGaps turns a sorted list of protected spans into a gap-free span
// sequence over the buffer, gaps classified translatable.
func fillGaps(text string, protected []Span) []Span {
	sort.Slice(protected, func(i, j int) bool { return protected[i].Start < protected[j].Start })

	var spans []Span
	pos := 0
	for _, p := range protected {
		if p.Start > pos {
			spans = append(spans, Span{Kind: Translatable, Tag: "prose", Start: pos, End: p.Start})
		}
		spans = append(spans, p)
		pos = p.End
	}
	if pos < len(text) {
		spans = append(spans, Span{Kind: Translatable, Tag: "prose", Start: pos, End: len(text)})
	}
	return spans
}

// Fallback patterns for constructs the structural scan missed, applied
// only inside translatable gaps.
var fallbackPatterns = []struct {
	re  *regexp.Regexp
	tag string
}{
	{regexp.MustCompile(`\$\$[\s\S]*?\$\$`), "math-display"},
	{regexp.MustCompile(`\\(?:cite|ref|label)[a-zA-Z]*\*?(?:\s*\[[^\]\n]*\])?\s*\{[^{}\n]*\}`), "macro"},
}

// fallbackPass rescans each translatable span with the pattern set and
// splits out matches as protected spans. Already-protected spans are
// never revisited.
func fallbackPass(text string, spans []Span) []Span {
	var out []Span
	for _, sp := range spans {
		if sp.Kind == Protected {
			out = append(out, sp)
			continue
		}
		out = append(out, splitByPatterns(text, sp)...)
	}
	return out
}

func splitByPatterns(text string, sp Span) []Span {
	segment := text[sp.Start:sp.End]

	type hit struct {
		start, end int
		tag        string
	}
	var hits []hit
	for _, p := range fallbackPatterns {
		for _, m := range p.re.FindAllStringIndex(segment, -1) {
			hits = append(hits, hit{sp.Start + m[0], sp.Start + m[1], p.tag})
		}
	}
	if len(hits) == 0 {
		return []Span{sp}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	var result []Span
	pos := sp.Start
	for _, h := range hits {
		if h.start < pos {
			continue // overlaps a previous hit
		}
		if h.start > pos {
			result = append(result, Span{Kind: Translatable, Tag: "prose", Start: pos, End: h.start})
		}
		result = append(result, Span{Kind: Protected, Tag: h.tag, Start: h.start, End: h.end})
		pos = h.end
	}
	if pos < sp.End {
		result = append(result, Span{Kind: Translatable, Tag: "prose", Start: pos, End: sp.End})
	}
	return result
}
