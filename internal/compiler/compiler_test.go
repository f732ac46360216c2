package compiler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultTimeout, New(0).timeout)
	assert.Equal(t, time.Minute, New(time.Minute).timeout)
}

func TestExtractRelevantLogShortLogUntouched(t *testing.T) {
	log := "short log\nwith two lines"
	assert.Equal(t, log, ExtractRelevantLog(log, 4000))
}

func TestExtractRelevantLogCentersOnError(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 200; i++ {
		sb.WriteString("noise line\n")
	}
	sb.WriteString("! Undefined control sequence.\n")
	sb.WriteString("l.42 \\badmacro\n")
	log := sb.String()

	got := ExtractRelevantLog(log, 500)
	assert.Contains(t, got, "! Undefined control sequence.")
	assert.Contains(t, got, "l.42")
	assert.LessOrEqual(t, len(got), 500+len("\n...[truncated]"))
}

func TestExtractRelevantLogNoErrorKeepsTail(t *testing.T) {
	log := strings.Repeat("filler\n", 100) + "the very end"
	got := ExtractRelevantLog(log, 50)
	assert.Len(t, got, 50)
	assert.True(t, strings.HasSuffix(got, "the very end"))
}

func TestFirstErrorLine(t *testing.T) {
	log := "some output\n! LaTeX Error: File `xeCJK.sty' not found.\nmore output\n! second error\n"
	assert.Equal(t, "! LaTeX Error: File `xeCJK.sty' not found.", firstErrorLine(log))

	assert.Equal(t, "compilation failed, see log", firstErrorLine("clean output\n"))
}

func TestReadLogFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.log"), []byte("log body"), 0644))

	assert.Equal(t, "log body", readLogFile(dir, "main.tex"))
	assert.Empty(t, readLogFile(dir, "other.tex"))
}

func TestCopyPDF(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.5 fake"), 0644))

	dest := filepath.Join(dir, "out", "paper_zh.pdf")
	require.NoError(t, CopyPDF(src, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5 fake", string(data))
}

func TestCopyPDFMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyPDF(filepath.Join(dir, "absent.pdf"), filepath.Join(dir, "out.pdf"))
	require.Error(t, err)
}
