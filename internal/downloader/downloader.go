// Package downloader fetches LaTeX sources for a run: an arXiv e-print
// by ID or URL, a local archive, or a plain directory. Whatever the
// source, the result is an extracted project directory.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

const (
	// DefaultTimeout covers a full e-print download, which can run into
	// tens of megabytes.
	DefaultTimeout = 300 * time.Second
	// ArxivEprintBaseURL is the base URL for arXiv e-print downloads.
	ArxivEprintBaseURL = "https://arxiv.org/e-print/"
	// MaxRetries bounds download attempts for network errors.
	MaxRetries = 3
	// BaseRetryDelay is multiplied by the attempt number between retries.
	BaseRetryDelay = 2 * time.Second
)

var (
	// newArxivIDPattern matches post-2007 IDs like 2301.00001 or 2301.00001v2.
	newArxivIDPattern = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
	// oldArxivIDPattern matches pre-2007 IDs like hep-th/9901001.
	oldArxivIDPattern = regexp.MustCompile(`^[a-z-]+(\.[A-Z]{2})?/\d{7}(v\d+)?$`)
)

// DetectSource classifies a command line source reference.
func DetectSource(ref string) (types.SourceType, error) {
	switch {
	case ref == "":
		return "", types.NewAppError(types.ErrInvalidInput, "source reference cannot be empty", nil)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return types.SourceTypeURL, nil
	case newArxivIDPattern.MatchString(ref) || oldArxivIDPattern.MatchString(ref):
		return types.SourceTypeArxivID, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", types.NewAppError(types.ErrInvalidInput,
			fmt.Sprintf("source %q is neither an arXiv ID, a URL, nor an existing path", ref), err)
	}
	if info.IsDir() {
		return types.SourceTypeLocalDir, nil
	}
	return types.SourceTypeLocalArchive, nil
}

// BuildArxivURL constructs the e-print download URL for an arXiv ID.
// Both new (2301.00001) and old (hep-th/9901001) formats work.
func BuildArxivURL(arxivID string) string {
	return ArxivEprintBaseURL + arxivID
}

// SourceDownloader fetches and extracts LaTeX sources.
type SourceDownloader struct {
	httpClient *http.Client
	workDir    string
}

// New creates a SourceDownloader extracting into workDir.
func New(workDir string) *SourceDownloader {
	return NewWithTimeout(workDir, DefaultTimeout)
}

// NewWithTimeout creates a SourceDownloader with a custom HTTP timeout.
func NewWithTimeout(workDir string, timeout time.Duration) *SourceDownloader {
	return &SourceDownloader{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return types.NewAppError(types.ErrNetwork, "too many redirects", nil)
				}
				return nil
			},
		},
		workDir: workDir,
	}
}

// Fetch resolves a source reference of any supported type into an
// extracted project directory recorded in the returned SourceInfo.
func (d *SourceDownloader) Fetch(ctx context.Context, ref string) (*types.SourceInfo, error) {
	sourceType, err := DetectSource(ref)
	if err != nil {
		return nil, err
	}
	logger.Info("fetching source",
		logger.String("ref", ref),
		logger.String("type", string(sourceType)))

	switch sourceType {
	case types.SourceTypeArxivID:
		return d.fetchRemote(ctx, sourceType, ref, BuildArxivURL(ref), archiveNameForID(ref))
	case types.SourceTypeURL:
		return d.fetchRemote(ctx, sourceType, ref, ref, filenameFromURL(ref))
	case types.SourceTypeLocalArchive:
		info, err := d.Extract(ref)
		if err != nil {
			return nil, err
		}
		info.SourceType = types.SourceTypeLocalArchive
		info.OriginalRef = ref
		return info, nil
	case types.SourceTypeLocalDir:
		return d.copyLocalDir(ref)
	default:
		return nil, types.NewAppError(types.ErrInvalidInput, "unsupported source type", nil)
	}
}

func (d *SourceDownloader) fetchRemote(ctx context.Context, sourceType types.SourceType, ref, url, filename string) (*types.SourceInfo, error) {
	if err := os.MkdirAll(d.workDir, 0755); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create work directory", err)
	}

	archivePath := filepath.Join(d.workDir, filename)
	if err := d.downloadWithRetry(ctx, url, archivePath); err != nil {
		return nil, err
	}

	info, err := d.Extract(archivePath)
	if err != nil {
		return nil, err
	}
	info.SourceType = sourceType
	info.OriginalRef = ref
	return info, nil
}

// downloadWithRetry retries transient network failures with linear
// backoff, honoring context cancellation between attempts.
func (d *SourceDownloader) downloadWithRetry(ctx context.Context, url, destPath string) error {
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		logger.Debug("download attempt", logger.Int("attempt", attempt), logger.String("url", url))
		err := d.downloadFile(ctx, url, destPath)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("download attempt failed", logger.Int("attempt", attempt), logger.Err(err))

		if !types.IsTransient(err) {
			return err
		}
		if attempt < MaxRetries {
			select {
			case <-ctx.Done():
				return types.NewAppError(types.ErrNetwork, "download canceled", ctx.Err())
			case <-time.After(BaseRetryDelay * time.Duration(attempt)):
			}
		}
	}
	return types.NewAppErrorWithDetails(types.ErrNetwork,
		"download failed after multiple retries",
		fmt.Sprintf("attempted %d times", MaxRetries), lastErr)
}

func (d *SourceDownloader) downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create HTTP request", err)
	}
	req.Header.Set("User-Agent", "arxiv-translator/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return types.NewAppError(types.ErrNetwork, "network request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return handleHTTPError(resp.StatusCode, url)
	}

	// arXiv serves a PDF when the authors did not upload source.
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "pdf") {
		return types.NewAppErrorWithDetails(types.ErrDownload,
			"paper source unavailable",
			"arXiv returned a PDF instead of LaTeX source; the authors may not have published it", nil)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create destination file", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		os.Remove(destPath)
		return types.NewAppError(types.ErrNetwork, "failed to save downloaded content", err)
	}
	return nil
}

// copyLocalDir mirrors a local project directory into the work area so
// translation never mutates the user's original files.
func (d *SourceDownloader) copyLocalDir(srcDir string) (*types.SourceInfo, error) {
	absSrc, err := filepath.Abs(srcDir)
	if err != nil {
		return nil, types.NewAppError(types.ErrInvalidInput, "failed to resolve source directory", err)
	}

	destDir := filepath.Join(d.workDir, filepath.Base(absSrc)+"_extracted")
	if err := os.RemoveAll(destDir); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to clean extraction directory", err)
	}

	err = filepath.Walk(absSrc, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(absSrc, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to copy source directory", err)
	}

	info := &types.SourceInfo{
		SourceType:  types.SourceTypeLocalDir,
		OriginalRef: srcDir,
		ExtractDir:  destDir,
	}
	info.AllTexFiles = listTexFiles(destDir)
	logger.Info("copied local project",
		logger.String("src", absSrc),
		logger.Int("texFiles", len(info.AllTexFiles)))
	return info, nil
}

func archiveNameForID(arxivID string) string {
	return strings.ReplaceAll(arxivID, "/", "_") + ".tar.gz"
}

// filenameFromURL derives an archive filename from a download URL.
func filenameFromURL(url string) string {
	if strings.Contains(url, "arxiv.org") {
		for _, prefix := range []string{"/e-print/", "/src/", "/abs/", "/pdf/"} {
			if idx := strings.LastIndex(url, prefix); idx != -1 {
				id := strings.TrimSuffix(url[idx+len(prefix):], ".pdf")
				return strings.ReplaceAll(id, "/", "_") + ".tar.gz"
			}
		}
	}
	parts := strings.Split(strings.TrimSuffix(url, "/"), "/")
	if name := parts[len(parts)-1]; name != "" {
		if !strings.Contains(name, ".") {
			name += ".tar.gz"
		}
		return name
	}
	return "download.tar.gz"
}

func handleHTTPError(statusCode int, url string) error {
	switch statusCode {
	case http.StatusNotFound:
		return types.NewAppErrorWithDetails(types.ErrDownload, "resource not found",
			fmt.Sprintf("URL %s returned 404", url), nil)
	case http.StatusForbidden:
		return types.NewAppErrorWithDetails(types.ErrDownload, "access forbidden",
			fmt.Sprintf("URL %s returned 403", url), nil)
	case http.StatusTooManyRequests:
		return types.NewAppErrorWithDetails(types.ErrAPIRateLimit, "rate limit exceeded",
			"too many requests, try again later", nil)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return types.NewAppErrorWithDetails(types.ErrNetwork, "server error",
			fmt.Sprintf("URL %s returned %d", url, statusCode), nil)
	default:
		return types.NewAppErrorWithDetails(types.ErrDownload, "download failed",
			fmt.Sprintf("URL %s returned status %d", url, statusCode), nil)
	}
}

func listTexFiles(dir string) []string {
	var files []string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(path), ".tex") {
			if rel, relErr := filepath.Rel(dir, path); relErr == nil {
				files = append(files, rel)
			}
		}
		return nil
	})
	return files
}
