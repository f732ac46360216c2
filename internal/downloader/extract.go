package downloader

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/types"
)

// Extract unpacks a .tar.gz or .zip archive into a fresh directory under
// the work dir. arXiv e-prints are gzipped tarballs without extension,
// so unknown extensions fall back to magic-byte detection.
func (d *SourceDownloader) Extract(archivePath string) (*types.SourceInfo, error) {
	logger.Info("extracting archive", logger.String("path", archivePath))

	if archivePath == "" {
		return nil, types.NewAppError(types.ErrInvalidInput, "archive path cannot be empty", nil)
	}
	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		return nil, types.NewAppError(types.ErrFileNotFound, "archive file not found", err)
	}
	if err := os.MkdirAll(d.workDir, 0755); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create work directory", err)
	}

	baseName := filepath.Base(archivePath)
	extractName := strings.TrimSuffix(strings.TrimSuffix(baseName, ".gz"), ".tar")
	extractName = strings.TrimSuffix(strings.TrimSuffix(extractName, ".tgz"), ".zip")
	extractDir := filepath.Join(d.workDir, extractName+"_extracted")

	if err := os.RemoveAll(extractDir); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to clean extraction directory", err)
	}
	if err := os.MkdirAll(extractDir, 0755); err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to create extraction directory", err)
	}

	var err error
	switch lower := strings.ToLower(archivePath); {
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		err = extractTarGz(archivePath, extractDir)
	case strings.HasSuffix(lower, ".zip"):
		err = extractZipFile(archivePath, extractDir)
	default:
		err = extractByDetection(archivePath, extractDir)
	}
	if err != nil {
		os.RemoveAll(extractDir)
		return nil, err
	}

	texFiles := listTexFiles(extractDir)
	logger.Info("extraction completed",
		logger.String("extractDir", extractDir),
		logger.Int("texFiles", len(texFiles)))

	return &types.SourceInfo{
		ExtractDir:  extractDir,
		AllTexFiles: texFiles,
	}, nil
}

func extractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to open archive", err)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to create gzip reader", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.NewAppError(types.ErrExtract, "failed to read tar entry", err)
		}

		targetPath, err := sanitizePath(destDir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return types.NewAppError(types.ErrExtract, "failed to create directory", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return types.NewAppError(types.ErrExtract, "failed to create parent directory", err)
			}
			outFile, err := os.Create(targetPath)
			if err != nil {
				return types.NewAppError(types.ErrExtract, "failed to create file", err)
			}
			_, err = io.Copy(outFile, io.LimitReader(tarReader, header.Size))
			outFile.Close()
			if err != nil {
				return types.NewAppError(types.ErrExtract, "failed to write file content", err)
			}
			os.Chmod(targetPath, os.FileMode(header.Mode))
		case tar.TypeSymlink:
			// Only keep symlinks that stay inside the extraction dir.
			linkTarget, err := sanitizePath(destDir, header.Linkname)
			if err != nil {
				continue
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return types.NewAppError(types.ErrExtract, "failed to create parent directory for symlink", err)
			}
			relTarget, err := filepath.Rel(filepath.Dir(targetPath), linkTarget)
			if err != nil {
				continue
			}
			if err := os.Symlink(relTarget, targetPath); err != nil {
				continue
			}
		}
	}
	return nil
}

func extractZipFile(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to open zip file", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		targetPath, err := sanitizePath(destDir, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return types.NewAppError(types.ErrExtract, "failed to create directory", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return types.NewAppError(types.ErrExtract, "failed to create parent directory", err)
		}
		if err := extractZipEntry(file, targetPath); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(file *zip.File, targetPath string) error {
	srcFile, err := file.Open()
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to open zip entry", err)
	}
	defer srcFile.Close()

	destFile, err := os.Create(targetPath)
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to create destination file", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, io.LimitReader(srcFile, int64(file.UncompressedSize64))); err != nil {
		return types.NewAppError(types.ErrExtract, "failed to write file content", err)
	}
	os.Chmod(targetPath, file.Mode())
	return nil
}

// extractByDetection sniffs the archive format from its magic bytes.
func extractByDetection(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to open file", err)
	}
	header := make([]byte, 4)
	_, err = io.ReadFull(file, header)
	file.Close()
	if err != nil {
		return types.NewAppError(types.ErrExtract, "failed to read file header", err)
	}

	switch {
	case header[0] == 0x1f && header[1] == 0x8b:
		return extractTarGz(archivePath, destDir)
	case header[0] == 0x50 && header[1] == 0x4b && header[2] == 0x03 && header[3] == 0x04:
		return extractZipFile(archivePath, destDir)
	default:
		return types.NewAppError(types.ErrExtract, "unsupported archive format", nil)
	}
}

// sanitizePath keeps archive entries inside destDir (zip slip guard).
func sanitizePath(destDir, entryName string) (string, error) {
	cleanName := filepath.Clean(entryName)

	if filepath.IsAbs(cleanName) || strings.HasPrefix(cleanName, "/") || strings.HasPrefix(cleanName, "\\") {
		return "", types.NewAppError(types.ErrExtract, "invalid path: absolute paths not allowed", nil)
	}
	if strings.HasPrefix(cleanName, "..") || strings.Contains(cleanName, string(filepath.Separator)+"..") {
		return "", types.NewAppError(types.ErrExtract, "invalid path: directory traversal not allowed", nil)
	}

	targetPath := filepath.Join(destDir, cleanName)
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", types.NewAppError(types.ErrExtract, "failed to resolve path", err)
	}
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", types.NewAppError(types.ErrExtract, "failed to resolve destination", err)
	}
	if !strings.HasPrefix(absTarget, absDest+string(filepath.Separator)) && absTarget != absDest {
		return "", types.NewAppError(types.ErrExtract, "invalid path: outside destination directory", nil)
	}
	return targetPath, nil
}
