// Package fixer repairs a translation the critic rejected. It feeds the
// concrete violations back to the model together with the faulty output
// and asks for a corrected version, instead of re-translating from
// scratch on every failure.
package fixer

import (
	"context"
	"fmt"
	"strings"

	"arxiv-translator/internal/critic"
	"arxiv-translator/internal/llm"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/masker"
)

// Fixer regenerates a rejected translation under explicit constraints.
type Fixer struct {
	client llm.Client
}

// New builds a Fixer sharing the pipeline's chat client.
func New(client llm.Client) *Fixer {
	return &Fixer{client: client}
}

const repairSystemPrompt = `You are repairing a machine translation of a LaTeX fragment.
The fragment contains placeholder tokens (marker characters around an
M-number) standing in for formulas, citations and environments.

A verifier rejected the previous output. You will receive the original
masked fragment, the faulty translation, and the exact violations.

Produce a corrected translation of the ORIGINAL fragment that:
1. Contains every placeholder token of the original EXACTLY ONCE, copied
   character by character.
2. Contains no token that is absent from the original.
3. Preserves the brace balance and every \begin/\end pair of the original.
4. Keeps the line structure of the original.

Output only the corrected fragment. No explanations, no code fences.`

// Repair asks the model for a corrected translation. The caller bounds
// how many times this is invoked and verifies the result again.
func (f *Fixer) Repair(ctx context.Context, originalMasked, faultyTranslation string, verdict critic.Verdict) (string, int, error) {
	if verdict.Pass {
		return faultyTranslation, 0, nil
	}

	user := buildRepairPrompt(originalMasked, faultyTranslation, verdict)
	reply, tokens, err := f.client.Generate(ctx, repairSystemPrompt, user)
	if err != nil {
		return "", 0, err
	}

	logger.Debug("repair attempt generated",
		logger.Int("violations", len(verdict.Violations)),
		logger.Int("tokensUsed", tokens))
	return cleanReply(reply), tokens, nil
}

// Retranslate is the escalation path: repair attempts are exhausted and
// the whole fragment is translated again from the original masked text.
// The fresh translation still goes back through the critic.
func (f *Fixer) Retranslate(ctx context.Context, originalMasked string) (string, int, error) {
	expected := masker.FindTokens(originalMasked)
	user := fmt.Sprintf(`Translate this LaTeX fragment again from scratch. It contains %d
placeholder tokens; copy each one exactly once, unchanged.

%s`, len(expected), originalMasked)

	reply, tokens, err := f.client.Generate(ctx, repairSystemPrompt, user)
	if err != nil {
		return "", 0, err
	}
	return cleanReply(reply), tokens, nil
}

func buildRepairPrompt(original, faulty string, verdict critic.Verdict) string {
	var sb strings.Builder
	sb.WriteString("Violations found by the verifier:\n")
	for _, v := range verdict.Violations {
		if v.Token != "" {
			fmt.Fprintf(&sb, "- %s: token %s: %s\n", v.Kind, v.Token, v.Detail)
		} else {
			fmt.Fprintf(&sb, "- %s: %s\n", v.Kind, v.Detail)
		}
	}
	sb.WriteString("\nOriginal masked fragment:\n")
	sb.WriteString(original)
	sb.WriteString("\n\nFaulty translation to correct:\n")
	sb.WriteString(faulty)
	return sb.String()
}

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
