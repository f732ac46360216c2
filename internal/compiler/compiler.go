// Package compiler runs latexmk over the translated project and
// collects the resulting PDF.
package compiler

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

// DefaultTimeout bounds a single latexmk run. latexmk reruns xelatex as
// needed, so one invocation covers references and bibliography passes.
const DefaultTimeout = 5 * time.Minute

// Compiler compiles a LaTeX project with latexmk/xelatex.
type Compiler struct {
	timeout time.Duration
}

// New builds a Compiler. A zero timeout selects DefaultTimeout.
func New(timeout time.Duration) *Compiler {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Compiler{timeout: timeout}
}

// Available reports whether latexmk is installed.
func Available() bool {
	_, err := exec.LookPath("latexmk")
	return err == nil
}

// Compile runs latexmk -xelatex on mainTexFile inside sandboxDir. The
// returned CompileResult carries the log excerpt on failure; err is
// non-nil only when the compiler could not be run at all.
func (c *Compiler) Compile(ctx context.Context, sandboxDir, mainTexFile string) (*types.CompileResult, error) {
	mainFile := filepath.Base(mainTexFile)
	logger.Info("compiling translated project",
		logger.String("dir", sandboxDir),
		logger.String("main", mainFile))

	if !Available() {
		return &types.CompileResult{
			Success:  false,
			ErrorMsg: "latexmk not found in PATH",
		}, types.NewAppError(types.ErrCompile, "latexmk not found in PATH", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "latexmk",
		"-xelatex",
		"-interaction=nonstopmode",
		"-file-line-error",
		"-halt-on-error",
		mainFile,
	)
	cmd.Dir = sandboxDir

	output, err := cmd.CombinedOutput()
	log := string(output)

	if runCtx.Err() == context.DeadlineExceeded {
		logger.Error("compilation timed out", runCtx.Err(), logger.String("main", mainFile))
		return &types.CompileResult{
			Success:  false,
			Log:      ExtractRelevantLog(log, 4000),
			ErrorMsg: fmt.Sprintf("compilation timed out after %s", c.timeout),
		}, nil
	}

	if err != nil {
		// Prefer the .log file, which carries file-line-error markers.
		if fileLog := readLogFile(sandboxDir, mainFile); fileLog != "" {
			log = fileLog
		}
		logger.Error("compilation failed", err, logger.String("main", mainFile))
		return &types.CompileResult{
			Success:  false,
			Log:      ExtractRelevantLog(log, 4000),
			ErrorMsg: firstErrorLine(log),
		}, nil
	}

	pdfPath := filepath.Join(sandboxDir, strings.TrimSuffix(mainFile, ".tex")+".pdf")
	if _, statErr := os.Stat(pdfPath); statErr != nil {
		return &types.CompileResult{
			Success:  false,
			Log:      ExtractRelevantLog(log, 4000),
			ErrorMsg: "latexmk reported success but no PDF was produced",
		}, nil
	}

	logger.Info("compilation successful", logger.String("pdf", pdfPath))
	return &types.CompileResult{Success: true, PDFPath: pdfPath}, nil
}

// CopyPDF copies the produced PDF to destPath, creating directories as
// needed.
func CopyPDF(pdfPath, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create PDF output directory", err)
	}
	src, err := os.Open(pdfPath)
	if err != nil {
		return types.NewAppError(types.ErrFileNotFound, "failed to open compiled PDF", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create PDF copy", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to copy PDF", err)
	}
	return nil
}

func readLogFile(sandboxDir, mainFile string) string {
	logPath := filepath.Join(sandboxDir, strings.TrimSuffix(mainFile, ".tex")+".log")
	data, err := os.ReadFile(logPath)
	if err != nil {
		return ""
	}
	return string(data)
}

// ExtractRelevantLog trims a compilation log down to the portion around
// the first error so it fits in reports and error messages.
func ExtractRelevantLog(log string, maxLen int) string {
	if len(log) <= maxLen {
		return log
	}
	lines := strings.Split(log, "\n")
	for i, line := range lines {
		if strings.HasPrefix(line, "!") || strings.Contains(line, ":! ") ||
			strings.Contains(line, "Error") {
			start := i - 5
			if start < 0 {
				start = 0
			}
			excerpt := strings.Join(lines[start:], "\n")
			if len(excerpt) > maxLen {
				excerpt = excerpt[:maxLen] + "\n...[truncated]"
			}
			return excerpt
		}
	}
	return log[len(log)-maxLen:]
}

// firstErrorLine returns the first error-looking line of the log.
func firstErrorLine(log string) string {
	for _, line := range strings.Split(log, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "!") {
			return trimmed
		}
	}
	return "compilation failed, see log"
}
