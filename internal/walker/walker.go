// Package walker discovers the translation units of a multi-file LaTeX
// project by recursively resolving \input and \include directives into a
// dependency graph. Traversal visits each physical file at most once, so
// diamond inclusion and inclusion cycles both terminate.
package walker

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

var includePattern = regexp.MustCompile(`\\(?:input|include)\s*\{([^}]+)\}`)

// Unit is a single source file of the project.
type Unit struct {
	// Path is the canonical absolute path of the file.
	Path string
	// RelPath is the path relative to the project root, for reporting.
	RelPath string
	// Content is the raw file content at discovery time.
	Content string
	// Includes lists the canonical paths of directly included units.
	Includes []string
}

// Warning is a non-fatal discovery event.
type Warning struct {
	Code types.ErrorCode `json:"code"`
	Path string          `json:"path"` // unit in which the event occurred
	Ref  string          `json:"ref"`  // the offending include reference
}

// Project is the discovered document graph. The entry unit is always
// present in Units; Units is in deterministic discovery preorder.
type Project struct {
	Root     string
	Entry    string
	Units    []*Unit
	Warnings []Warning

	byPath map[string]*Unit
}

// UnitByPath returns the unit with the given canonical path.
func (p *Project) UnitByPath(path string) (*Unit, bool) {
	u, ok := p.byPath[path]
	return u, ok
}

// Discover walks the inclusion graph starting at entry. Missing include
// targets are reported as warnings and excluded; cycles are truncated at
// the second visit. Only an unreadable entry file is an error.
func Discover(root, entry string) (*Project, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "cannot resolve project root", err)
	}
	absEntry, err := filepath.Abs(entry)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "cannot resolve entry file", err)
	}

	p := &Project{
		Root:   absRoot,
		Entry:  absEntry,
		byPath: make(map[string]*Unit),
	}

	visited := make(map[string]bool)
	inStack := make(map[string]bool)

	var dfs func(path string) error
	dfs = func(path string) error {
		if visited[path] {
			return nil
		}
		visited[path] = true
		inStack[path] = true
		defer func() { inStack[path] = false }()

		data, err := os.ReadFile(path)
		if err != nil {
			if path == absEntry {
				return types.NewAppError(types.ErrFileNotFound, "entry file unreadable", err)
			}
			// discovered via a resolvable include that disappeared since
			p.Warnings = append(p.Warnings, Warning{Code: types.ErrMissingInclude, Path: path})
			return nil
		}

		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil {
			rel = path
		}
		u := &Unit{Path: path, RelPath: rel, Content: string(data)}
		p.Units = append(p.Units, u)
		p.byPath[path] = u

		for _, m := range includePattern.FindAllStringSubmatch(u.Content, -1) {
			ref := strings.TrimSpace(m[1])
			target, ok := resolveInclude(absRoot, path, ref)
			if !ok {
				logger.Warn("could not resolve include",
					logger.String("unit", rel), logger.String("ref", ref))
				p.Warnings = append(p.Warnings, Warning{Code: types.ErrMissingInclude, Path: path, Ref: ref})
				continue
			}
			if inStack[target] {
				logger.Info("inclusion cycle truncated",
					logger.String("unit", rel), logger.String("ref", ref))
				p.Warnings = append(p.Warnings, Warning{Code: types.ErrCycleTruncated, Path: path, Ref: ref})
				continue
			}
			u.Includes = append(u.Includes, target)
			if err := dfs(target); err != nil {
				return err
			}
		}
		return nil
	}

	if err := dfs(absEntry); err != nil {
		return nil, err
	}

	logger.Info("document graph discovered",
		logger.Int("units", len(p.Units)),
		logger.Int("warnings", len(p.Warnings)))
	return p, nil
}

// resolveInclude resolves an \input/\include reference, appending the
// .tex extension when absent and trying the including file's directory
// before the project root.
func resolveInclude(root, from, ref string) (string, bool) {
	candidate := ref
	if !strings.HasSuffix(candidate, ".tex") {
		candidate += ".tex"
	}

	fromDir := filepath.Dir(from)
	for _, base := range []string{fromDir, root} {
		path := filepath.Join(base, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			abs, err := filepath.Abs(path)
			if err == nil {
				return abs, true
			}
		}
	}
	return "", false
}

// mainTexPriority lists preferred entry file names, checked in order.
var mainTexPriority = []string{"main.tex", "paper.tex", "article.tex", "ms.tex"}

// FindMainTex locates the project's entry file: a .tex file containing
// \documentclass, preferring conventional names, falling back to the
// first candidate in sorted order.
func FindMainTex(dir string) (string, error) {
	var candidates []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasSuffix(path, ".tex") {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if strings.Contains(string(data), `\documentclass`) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to scan project directory", err)
	}
	if len(candidates) == 0 {
		return "", types.NewAppError(types.ErrFileNotFound, "no file with \\documentclass found", nil)
	}
	sort.Strings(candidates)

	for _, name := range mainTexPriority {
		for _, c := range candidates {
			if strings.EqualFold(filepath.Base(c), name) {
				return c, nil
			}
		}
	}
	return candidates[0], nil
}
