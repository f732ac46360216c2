// Package pipeline drives each discovered unit through mask, translate,
// verify, repair and unmask. Units run concurrently but fail in
// isolation: one bad file never aborts the rest of the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"arxiv-translator/internal/critic"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/masker"
	"arxiv-translator/internal/types"
	"arxiv-translator/internal/walker"
)

const (
	// DefaultConcurrency is the number of units translated in parallel.
	DefaultConcurrency = 3
	// DefaultRepairLimit bounds constrained repair attempts per unit
	// before escalating to a full re-translation.
	DefaultRepairLimit = 3
)

// UnitTranslator translates one unit's masked text.
type UnitTranslator interface {
	Translate(ctx context.Context, masked string) (string, int, error)
}

// Repairer regenerates a rejected translation, either constrained by
// the critic's violations or from scratch.
type Repairer interface {
	Repair(ctx context.Context, originalMasked, faultyTranslation string, verdict critic.Verdict) (string, int, error)
	Retranslate(ctx context.Context, originalMasked string) (string, int, error)
}

// Options configures a run.
type Options struct {
	Concurrency int
	RepairLimit int
	// OutputDir receives the translated tree, mirroring unit RelPaths.
	OutputDir string
	// AuditDir receives per-unit mask mapping JSON files. Empty disables.
	AuditDir string
	// SkipTranslation short-circuits the translator: units are masked
	// and immediately unmasked, exercising the round-trip only.
	SkipTranslation bool
}

func (o *Options) applyDefaults() {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.RepairLimit <= 0 {
		o.RepairLimit = DefaultRepairLimit
	}
}

// UnitResult is the terminal record for one unit.
type UnitResult struct {
	RelPath        string          `json:"rel_path"`
	State          types.UnitState `json:"state"`
	Degraded       bool            `json:"degraded,omitempty"`
	MaskedSpans    int             `json:"masked_spans"`
	TokensUsed     int             `json:"tokens_used"`
	RepairAttempts int             `json:"repair_attempts,omitempty"`
	Retranslated   bool            `json:"retranslated,omitempty"`
	ErrorCode      types.ErrorCode `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// Result summarizes a whole run.
type Result struct {
	Units    []UnitResult     `json:"units"`
	Warnings []walker.Warning `json:"warnings,omitempty"`
}

// Failed reports how many units ended in the failed state.
func (r *Result) Failed() int {
	n := 0
	for _, u := range r.Units {
		if u.State == types.StateFailed {
			n++
		}
	}
	return n
}

// TokensUsed totals model tokens across all units.
func (r *Result) TokensUsed() int {
	n := 0
	for _, u := range r.Units {
		n += u.TokensUsed
	}
	return n
}

// Pipeline owns the per-unit processing loop.
type Pipeline struct {
	translator UnitTranslator
	repairer   Repairer
	opts       Options
}

// New builds a Pipeline. The repairer may be nil when translation is
// skipped.
func New(tr UnitTranslator, rep Repairer, opts Options) *Pipeline {
	opts.applyDefaults()
	return &Pipeline{translator: tr, repairer: rep, opts: opts}
}

// Run processes every unit of the project and writes translated files
// under OutputDir. It returns an error only for run-level failures
// (cancellation, unwritable output); per-unit failures are reported in
// the Result.
func (p *Pipeline) Run(ctx context.Context, project *walker.Project) (*Result, error) {
	if p.opts.OutputDir != "" {
		if err := os.MkdirAll(p.opts.OutputDir, 0755); err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to create output directory", err)
		}
	}
	if p.opts.AuditDir != "" {
		if err := os.MkdirAll(p.opts.AuditDir, 0755); err != nil {
			return nil, types.NewAppError(types.ErrInternal, "failed to create audit directory", err)
		}
	}

	results := make([]UnitResult, len(project.Units))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i, unit := range project.Units {
		i, unit := i, unit
		g.Go(func() error {
			res := p.processUnit(gctx, unit)
			mu.Lock()
			results[i] = res
			mu.Unlock()
			// Cancellation is the only error that stops the group.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "run canceled", err)
	}

	result := &Result{Units: results, Warnings: project.Warnings}
	logger.Info("pipeline run finished",
		logger.Int("units", len(results)),
		logger.Int("failed", result.Failed()),
		logger.Int("tokensUsed", result.TokensUsed()))
	return result, nil
}

// processUnit walks one unit through the state machine. Every exit path
// leaves the unit in a terminal state: done or failed.
func (p *Pipeline) processUnit(ctx context.Context, unit *walker.Unit) UnitResult {
	res := UnitResult{RelPath: unit.RelPath, State: types.StatePending}
	step := func(next types.UnitState) {
		logger.Debug("unit state transition",
			logger.String("unit", unit.RelPath),
			logger.String("from", string(res.State)),
			logger.String("to", string(next)))
		res.State = next
	}
	fail := func(err error) UnitResult {
		res.ErrorCode = types.CodeOf(err)
		res.ErrorMessage = err.Error()
		step(types.StateFailed)
		logger.Error("unit failed", err, logger.String("unit", unit.RelPath))
		return res
	}

	// Mask
	buf := masker.Mask(unit.Content)
	res.Degraded = buf.Degraded
	res.MaskedSpans = len(buf.Mapping)
	if buf.Degraded {
		logger.Warn("classification degraded, protected to end of file",
			logger.String("unit", unit.RelPath),
			logger.String("code", string(types.ErrClassificationDegraded)))
	}
	step(types.StateMasked)

	if p.opts.AuditDir != "" {
		auditPath := filepath.Join(p.opts.AuditDir, auditName(unit.RelPath))
		if err := buf.SaveMapping(auditPath); err != nil {
			logger.Warn("failed to write mapping audit", logger.Err(err),
				logger.String("unit", unit.RelPath))
		}
	}

	var translated string
	if p.opts.SkipTranslation {
		translated = buf.Masked
		step(types.StateTranslated)
	} else {
		text, tokens, err := p.translator.Translate(ctx, buf.Masked)
		res.TokensUsed += tokens
		if err != nil {
			return fail(err)
		}
		translated = text
		step(types.StateTranslated)

		step(types.StateVerifying)
		verified, err := p.verifyAndRepair(ctx, unit.RelPath, buf, translated, &res)
		if err != nil {
			return fail(err)
		}
		translated = verified
		step(types.StateVerified)
	}

	// Unmask
	output, err := buf.Unmask(translated)
	if err != nil {
		return fail(err)
	}
	step(types.StateUnmasked)

	if p.opts.OutputDir != "" {
		outPath := filepath.Join(p.opts.OutputDir, unit.RelPath)
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			return fail(types.NewAppError(types.ErrInternal, "failed to create unit output directory", err))
		}
		if err := os.WriteFile(outPath, []byte(output), 0644); err != nil {
			return fail(types.NewAppError(types.ErrInternal, "failed to write translated unit", err))
		}
	}

	step(types.StateDone)
	return res
}

// verifyAndRepair runs the critic and, on rejection, the bounded repair
// loop followed by a single full re-translation before giving up.
func (p *Pipeline) verifyAndRepair(ctx context.Context, relPath string, buf *masker.MaskedBuffer, translated string, res *UnitResult) (string, error) {
	verdict := critic.Verify(buf.Mapping, buf.Masked, translated)
	if verdict.Pass {
		return translated, nil
	}

	if p.repairer == nil {
		return "", repairExhausted(relPath, verdict, 0)
	}

	res.State = types.StateRepairing
	current := translated
	for attempt := 1; attempt <= p.opts.RepairLimit; attempt++ {
		logger.Info("repairing rejected translation",
			logger.String("unit", relPath),
			logger.Int("attempt", attempt),
			logger.Int("violations", len(verdict.Violations)))

		fixed, tokens, err := p.repairer.Repair(ctx, buf.Masked, current, verdict)
		res.TokensUsed += tokens
		res.RepairAttempts = attempt
		if err != nil {
			return "", err
		}
		current = fixed

		verdict = critic.Verify(buf.Mapping, buf.Masked, current)
		if verdict.Pass {
			return current, nil
		}
	}

	// Escalation: last resort, translate the fragment again from scratch.
	logger.Warn("repair budget exhausted, re-translating unit",
		logger.String("unit", relPath),
		logger.Int("repairAttempts", res.RepairAttempts))
	res.Retranslated = true
	fresh, tokens, err := p.repairer.Retranslate(ctx, buf.Masked)
	res.TokensUsed += tokens
	if err != nil {
		return "", err
	}
	verdict = critic.Verify(buf.Mapping, buf.Masked, fresh)
	if verdict.Pass {
		return fresh, nil
	}
	return "", repairExhausted(relPath, verdict, res.RepairAttempts)
}

func repairExhausted(relPath string, verdict critic.Verdict, attempts int) error {
	kinds := verdict.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return types.NewAppErrorWithDetails(types.ErrRepairExhausted,
		fmt.Sprintf("unit %s still invalid after %d repair attempts", relPath, attempts),
		strings.Join(names, ", "), nil)
}

// auditName flattens a relative unit path into a mapping file name.
func auditName(relPath string) string {
	flat := strings.ReplaceAll(relPath, string(filepath.Separator), "__")
	return flat + ".mapping.json"
}
