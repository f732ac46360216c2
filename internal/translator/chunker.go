package translator

import (
	"regexp"
	"strings"
)

// sectionPattern matches sectioning commands at the start of a line.
var sectionPattern = regexp.MustCompile(`(?m)^\\(part|chapter|section|subsection|subsubsection)\s*[\[{*]`)

// paragraphPattern matches paragraph breaks.
var paragraphPattern = regexp.MustCompile(`\n\s*\n`)

// SplitIntoChunks splits masked text into translation-sized pieces.
// Masked text has no multi-line protected environments left in it, so
// splitting works on textual structure alone: section boundaries first,
// then paragraph breaks, then line boundaries as a last resort.
// Concatenating the chunks reproduces the input exactly.
func SplitIntoChunks(content string, maxSize int) []string {
	if len(content) <= maxSize {
		return []string{content}
	}

	chunks := splitAt(content, sectionStarts(content), maxSize)

	var result []string
	for _, chunk := range chunks {
		if len(chunk) <= maxSize {
			result = append(result, chunk)
			continue
		}
		for _, sub := range splitAt(chunk, paragraphEnds(chunk), maxSize) {
			if len(sub) <= maxSize {
				result = append(result, sub)
			} else {
				result = append(result, splitByLines(sub, maxSize)...)
			}
		}
	}
	return result
}

func sectionStarts(content string) []int {
	matches := sectionPattern.FindAllStringIndex(content, -1)
	cuts := make([]int, 0, len(matches))
	for _, m := range matches {
		cuts = append(cuts, m[0])
	}
	return cuts
}

func paragraphEnds(content string) []int {
	matches := paragraphPattern.FindAllStringIndex(content, -1)
	cuts := make([]int, 0, len(matches))
	for _, m := range matches {
		cuts = append(cuts, m[1])
	}
	return cuts
}

// splitAt greedily packs the segments between cut positions into chunks
// of at most maxSize bytes, never emitting an empty chunk.
func splitAt(content string, cuts []int, maxSize int) []string {
	if len(cuts) == 0 {
		return []string{content}
	}

	var chunks []string
	var current strings.Builder
	last := 0
	flushAppend := func(segment string) {
		if current.Len() > 0 && current.Len()+len(segment) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(segment)
	}

	for _, cut := range cuts {
		if cut <= last || cut >= len(content) {
			continue
		}
		flushAppend(content[last:cut])
		last = cut
	}
	flushAppend(content[last:])

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// splitByLines is the last-resort split. It cuts at line boundaries so a
// placeholder token is never torn apart; a single line longer than
// maxSize becomes its own chunk.
func splitByLines(content string, maxSize int) []string {
	var chunks []string
	var current strings.Builder

	rest := content
	for len(rest) > 0 {
		line := rest
		if idx := strings.IndexByte(rest, '\n'); idx != -1 {
			line = rest[:idx+1]
			rest = rest[idx+1:]
		} else {
			rest = ""
		}
		if current.Len() > 0 && current.Len()+len(line) > maxSize {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		current.WriteString(line)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
