// Package report records the outcome of a translation run. Each run
// gets a report.json under the run's log directory plus a human-readable
// status table on the console.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"arxiv-translator/internal/pipeline"
	"arxiv-translator/internal/types"
)

// Report is the persisted record of one run.
type Report struct {
	RunID      string            `json:"run_id"`
	Source     types.SourceInfo  `json:"source"`
	EntryFile  string            `json:"entry_file"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	TokensUsed int               `json:"tokens_used"`
	PDFPath    string            `json:"pdf_path,omitempty"`
	Result     *pipeline.Result  `json:"result"`
}

// New starts a report for a run.
func New(source types.SourceInfo, entryFile string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Source:    source,
		EntryFile: entryFile,
		StartedAt: time.Now(),
	}
}

// Finish stamps the end time and attaches the pipeline result.
func (r *Report) Finish(result *pipeline.Result) {
	r.FinishedAt = time.Now()
	r.Result = result
	if result != nil {
		r.TokensUsed = result.TokensUsed()
	}
}

// Save writes the report as JSON.
func (r *Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create report directory", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal report", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write report", err)
	}
	return nil
}

// Render prints the per-unit status table and warnings to w.
func (r *Report) Render(w io.Writer) {
	if r.Result == nil {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Unit", "State", "Spans", "Tokens", "Repairs", "Error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Spans", Align: text.AlignRight},
		{Name: "Tokens", Align: text.AlignRight},
		{Name: "Repairs", Align: text.AlignRight},
	})

	for _, u := range r.Result.Units {
		state := string(u.State)
		if u.Degraded {
			state += " (degraded)"
		}
		repairs := fmt.Sprintf("%d", u.RepairAttempts)
		if u.Retranslated {
			repairs += "+retrans"
		}
		t.AppendRow(table.Row{u.RelPath, state, u.MaskedSpans, u.TokensUsed, repairs, u.ErrorCode})
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d units", len(r.Result.Units)),
		fmt.Sprintf("%d failed", r.Result.Failed()),
		"", r.TokensUsed, "", "",
	})
	t.Render()

	for _, w2 := range r.Result.Warnings {
		fmt.Fprintf(w, "warning: %s: %s (%s)\n", w2.Code, w2.Ref, w2.Path)
	}
	if r.PDFPath != "" {
		fmt.Fprintf(w, "PDF: %s\n", r.PDFPath)
	}
	fmt.Fprintf(w, "run %s finished in %s\n", r.RunID, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}
