// Package preamble prepares a translated project for CJK compilation.
// Western font packages that break under xelatex are commented out and
// an xeCJK setup block is injected into the main file.
package preamble

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

// sanitizedMarker prefixes every line the sanitizer comments out, so a
// second pass recognizes already-sanitized lines.
const sanitizedMarker = "% ARXIV_TRANSLATOR_SANITIZED: "

// conflictPackages override the main font or clash with xeCJK.
var conflictPackages = []string{
	"times", "palatino", "mathptmx", "newtxtext", "newtxmath",
	"helvet", "avant", "courier", "chancery", "bookman",
	"newcent", "charter", "fourier",
}

var sanitizePatterns = buildSanitizePatterns()

func buildSanitizePatterns() []*regexp.Regexp {
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?m)^(\s*)(\\pdfoutput\s*=\s*\d+)`),
		regexp.MustCompile(`(?m)^(\s*)(\\usepackage\s*\[T1\]\s*\{fontenc\}.*)$`),
		regexp.MustCompile(`(?m)^(\s*)(\\usepackage\s*\[utf8\]\s*\{inputenc\}.*)$`),
	}
	for _, pkg := range conflictPackages {
		patterns = append(patterns, regexp.MustCompile(
			`(?m)^(\s*)(\\usepackage\s*(?:\[[^\]]*\])?\s*\{`+pkg+`\}.*)$`))
	}
	return patterns
}

// SanitizeContent comments out conflicting font setup in one file's
// content. Already-sanitized lines are left alone.
func SanitizeContent(content string) string {
	out := content
	for _, re := range sanitizePatterns {
		out = re.ReplaceAllStringFunc(out, func(m string) string {
			if strings.Contains(m, sanitizedMarker) {
				return m
			}
			sub := re.FindStringSubmatch(m)
			return sub[1] + sanitizedMarker + sub[2]
		})
	}
	return out
}

// SanitizeProject rewrites every .tex, .sty and .cls file under dir in
// place. Unreadable files are skipped with a warning.
func SanitizeProject(dir string) error {
	logger.Info("sanitizing font usage", logger.String("dir", dir))
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".tex", ".sty", ".cls":
		default:
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read file for sanitizing", logger.Err(err), logger.String("path", path))
			return nil
		}
		sanitized := SanitizeContent(string(data))
		if sanitized == string(data) {
			return nil
		}
		if err := os.WriteFile(path, []byte(sanitized), info.Mode()); err != nil {
			logger.Warn("failed to write sanitized file", logger.Err(err), logger.String("path", path))
			return nil
		}
		logger.Debug("sanitized fonts", logger.String("path", path))
		return nil
	})
}

var documentClassPattern = regexp.MustCompile(`(?s)(\\documentclass(\[.*?\])?\{.*?\})`)

// fontSetup returns the xeCJK block for the current platform.
func fontSetup() string {
	if runtime.GOOS == "darwin" {
		return `
% --- CJK font setup (macOS) ---
\usepackage{xeCJK}
\setCJKmainfont[BoldFont=Songti SC Bold, ItalicFont=Songti SC Light]{Songti SC}
\setCJKsansfont{Heiti SC}
\setCJKmonofont{STFangsong}
% ------------------------------
`
	}
	return `
% --- CJK font setup ---
\usepackage{xeCJK}
\setCJKmainfont{SimSun}
\setCJKsansfont{SimHei}
\setCJKmonofont{FangSong}
% ----------------------
`
}

// InjectFontsContent inserts the xeCJK block right after \documentclass,
// or prepends it when no \documentclass is found.
func InjectFontsContent(content string) string {
	if strings.Contains(content, `\usepackage{xeCJK}`) {
		return content
	}
	block := fontSetup()
	if loc := documentClassPattern.FindStringIndex(content); loc != nil {
		return content[:loc[1]] + block + content[loc[1]:]
	}
	logger.Warn("no \\documentclass found, prepending font setup")
	return block + content
}

// InjectFonts rewrites the main tex file with the xeCJK setup in place.
func InjectFonts(mainTexPath string) error {
	data, err := os.ReadFile(mainTexPath)
	if err != nil {
		return types.NewAppError(types.ErrFileNotFound,
			fmt.Sprintf("main tex file not found: %s", mainTexPath), err)
	}
	out := InjectFontsContent(string(data))
	if out == string(data) {
		return nil
	}
	if err := os.WriteFile(mainTexPath, []byte(out), 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write font-injected file", err)
	}
	logger.Info("injected CJK font setup", logger.String("path", mainTexPath))
	return nil
}
