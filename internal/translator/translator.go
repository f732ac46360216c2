// Package translator turns masked LaTeX prose into the target language.
// It only ever sees masked text: every formula, citation and opaque
// environment has already been replaced by a placeholder token, so the
// model is asked to translate running text and copy tokens through.
package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arxiv-translator/internal/llm"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/masker"
	"arxiv-translator/internal/terminology"
	"arxiv-translator/internal/types"
)

const (
	// MaxChunkSize caps the size of a single translation request in bytes.
	MaxChunkSize = 4000
	// MaxRetries bounds attempts per chunk for transient failures.
	MaxRetries = 3
	// BaseRetryDelay is multiplied by the attempt number between retries.
	BaseRetryDelay = 2 * time.Second
)

// Translator translates masked unit text chunk by chunk.
type Translator struct {
	client         llm.Client
	glossary       terminology.Map
	targetLanguage string
	maxChunkSize   int
	maxRetries     int
	baseRetryDelay time.Duration
}

// Option adjusts a Translator.
type Option func(*Translator)

// WithChunkSize overrides the chunk size cap.
func WithChunkSize(n int) Option {
	return func(t *Translator) {
		if n > 0 {
			t.maxChunkSize = n
		}
	}
}

// WithRetry overrides the per-chunk retry budget and base delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(t *Translator) {
		if maxRetries > 0 {
			t.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			t.baseRetryDelay = baseDelay
		}
	}
}

// New builds a Translator. The glossary may be empty; targetLanguage
// defaults to Simplified Chinese.
func New(client llm.Client, glossary terminology.Map, targetLanguage string, opts ...Option) *Translator {
	if targetLanguage == "" {
		targetLanguage = "Simplified Chinese"
	}
	t := &Translator{
		client:         client,
		glossary:       glossary,
		targetLanguage: targetLanguage,
		maxChunkSize:   MaxChunkSize,
		maxRetries:     MaxRetries,
		baseRetryDelay: BaseRetryDelay,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Translate translates masked text and returns the translated masked
// text plus total tokens used. Placeholder tokens in the input must
// survive verbatim; the critic checks that afterwards.
func (t *Translator) Translate(ctx context.Context, masked string) (string, int, error) {
	if masked == "" {
		return "", 0, nil
	}

	chunks := SplitIntoChunks(masked, t.maxChunkSize)
	logger.Debug("masked text split for translation",
		logger.Int("bytes", len(masked)),
		logger.Int("chunks", len(chunks)))

	var out strings.Builder
	totalTokens := 0
	for i, chunk := range chunks {
		translated, tokens, err := t.translateChunkWithRetry(ctx, chunk)
		if err != nil {
			return "", totalTokens, types.NewAppErrorWithDetails(
				types.CodeOf(err),
				fmt.Sprintf("chunk %d/%d translation failed", i+1, len(chunks)),
				err.Error(), err)
		}
		out.WriteString(translated)
		totalTokens += tokens
	}
	return out.String(), totalTokens, nil
}

// translateChunkWithRetry retries transient failures with linear
// backoff, honoring context cancellation between attempts.
func (t *Translator) translateChunkWithRetry(ctx context.Context, chunk string) (string, int, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", 0, types.NewAppError(types.ErrNetwork, "translation canceled", err)
		}

		translated, tokens, err := t.doTranslateChunk(ctx, chunk)
		if err == nil {
			return translated, tokens, nil
		}
		lastErr = err
		logger.Warn("translation attempt failed",
			logger.Int("attempt", attempt), logger.Err(err))

		if !types.IsTransient(err) {
			return "", 0, err
		}
		if attempt < t.maxRetries {
			delay := t.baseRetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return "", 0, types.NewAppError(types.ErrNetwork, "translation canceled", ctx.Err())
			case <-time.After(delay):
			}
		}
	}
	return "", 0, types.NewAppErrorWithDetails(types.CodeOf(lastErr),
		"translation failed after retries",
		fmt.Sprintf("attempted %d times", t.maxRetries), lastErr)
}

func (t *Translator) doTranslateChunk(ctx context.Context, chunk string) (string, int, error) {
	tokens := masker.FindTokens(chunk)
	system := t.buildSystemPrompt()
	user := buildUserPrompt(chunk, len(tokens))

	reply, used, err := t.client.Generate(ctx, system, user)
	if err != nil {
		return "", 0, err
	}
	return cleanReply(reply), used, nil
}

func (t *Translator) buildSystemPrompt() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are a strict academic translator. Translate the text to %s.

The input is a FRAGMENT of a larger LaTeX document. Formulas, citations
and special environments have been replaced by placeholder tokens that
look like %s (marker characters around an M-number).

ABSOLUTE RULES:
1. Copy every placeholder token EXACTLY, character by character. Never
   translate, renumber, drop, duplicate or invent a token.
2. Preserve the line structure: do not merge or split lines, and keep
   empty lines empty.
3. Do not add, remove or "fix" any LaTeX command. Unbalanced braces or
   environments are expected in a fragment.
4. Output only the translated fragment. No explanations, no code fences.

Use proper punctuation for the target language and keep an academic tone.
`, t.targetLanguage, masker.Token(0))

	if block := t.glossary.PromptBlock(); block != "" {
		sb.WriteString("\n")
		sb.WriteString(block)
	}
	return sb.String()
}

func buildUserPrompt(chunk string, tokenCount int) string {
	if tokenCount == 0 {
		return fmt.Sprintf("Translate, keeping the same line structure:\n\n%s", chunk)
	}
	return fmt.Sprintf(`Translate, keeping the same line structure. This fragment contains %d placeholder tokens that must be copied exactly.

%s`, tokenCount, chunk)
}

// cleanReply strips markdown fences some models wrap the output in.
func cleanReply(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		return reply
	}
	trimmed = strings.TrimPrefix(trimmed, "```latex")
	trimmed = strings.TrimPrefix(trimmed, "```tex")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed) + "\n"
}
