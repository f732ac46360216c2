// Package terminology builds a per-paper glossary from the title and
// abstract before translation starts. The glossary is shared read-only
// by all translation workers so the same term is rendered the same way
// in every file.
package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"arxiv-translator/internal/llm"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

// Map holds source-language terms and their fixed translations. It is
// built once per run and never mutated afterwards.
type Map map[string]string

// Terms returns the glossary keys in sorted order.
func (m Map) Terms() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PromptBlock renders the glossary as lines suitable for embedding in a
// translation prompt. Empty maps render as an empty string.
func (m Map) PromptBlock() string {
	if len(m) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Use these fixed translations for the following terms:\n")
	for _, term := range m.Terms() {
		fmt.Fprintf(&sb, "- %s => %s\n", term, m[term])
	}
	return sb.String()
}

// Save writes the glossary as a JSON artifact for later inspection.
func (m Map) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create terminology directory", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal terminology", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write terminology file", err)
	}
	return nil
}

var (
	titlePattern    = regexp.MustCompile(`\\title\s*(?:\[[^\]]*\])?\s*\{`)
	abstractPattern = regexp.MustCompile(`(?s)\\begin\{abstract\}(.*?)\\end\{abstract\}`)
)

// ExtractMetadata pulls the title and abstract out of LaTeX source.
// Either may be empty when the document does not declare it.
func ExtractMetadata(content string) (title, abstract string) {
	if loc := titlePattern.FindStringIndex(content); loc != nil {
		if end, ok := matchBrace(content, loc[1]-1); ok {
			title = strings.TrimSpace(content[loc[1] : end-1])
		}
	}
	if m := abstractPattern.FindStringSubmatch(content); m != nil {
		abstract = strings.TrimSpace(m[1])
	}
	return title, abstract
}

// matchBrace returns the index just past the brace group opening at pos.
func matchBrace(src string, pos int) (int, bool) {
	depth := 0
	for i := pos; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}

const extractionSystemPrompt = `You are a terminology extractor for academic paper translation.
Given the title and abstract of a paper, identify the key technical terms
that must be translated consistently throughout the paper, and propose a
Chinese translation for each.

Rules:
- Include 5 to 20 terms. Prefer multi-word technical phrases over common words.
- Keep widely used acronyms (e.g. CNN, LLM) untranslated.
- Output ONLY a JSON object mapping each English term to its Chinese
  translation. No code fences, no commentary.`

// Build asks the model for a glossary derived from the title and
// abstract. A paper without either yields an empty map without calling
// the model.
func Build(ctx context.Context, client llm.Client, title, abstract string) (Map, error) {
	if title == "" && abstract == "" {
		logger.Debug("no title or abstract found, skipping terminology extraction")
		return Map{}, nil
	}

	user := fmt.Sprintf("Title: %s\n\nAbstract:\n%s", title, abstract)
	reply, tokens, err := client.Generate(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	m, err := parseGlossary(reply)
	if err != nil {
		return nil, err
	}
	logger.Info("terminology extracted",
		logger.Int("terms", len(m)),
		logger.Int("tokensUsed", tokens))
	return m, nil
}

// parseGlossary decodes the model reply as a JSON object, tolerating a
// markdown code fence around it.
func parseGlossary(reply string) (Map, error) {
	text := strings.TrimSpace(reply)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx != -1 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	// Fall back to the outermost object if the model added prose around it.
	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start == -1 || end <= start {
			return nil, types.NewAppErrorWithDetails(types.ErrAPICall,
				"terminology reply is not a JSON object", truncate(reply, 200), nil)
		}
		text = text[start : end+1]
	}

	var m Map
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, types.NewAppErrorWithDetails(types.ErrAPICall,
			"failed to parse terminology JSON", truncate(reply, 200), err)
	}
	for term, tr := range m {
		if strings.TrimSpace(term) == "" || strings.TrimSpace(tr) == "" {
			delete(m, term)
		}
	}
	return m, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
