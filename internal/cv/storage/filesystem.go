package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cvbank/cvbank-backend/pkg/logger"
)

const fileScheme = "file://"

// Filesystem stores files under a base directory on the local disk.
type Filesystem struct {
	basePath string
	logger   *logger.Logger
}

// NewFilesystem creates the base directory if needed. The base path is
// resolved to an absolute path so locators are stable across working directories.
func NewFilesystem(basePath string, log *logger.Logger) (*Filesystem, error) {
	if basePath == "" {
		return nil, fmt.Errorf("upload directory required")
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve upload directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	return &Filesystem{
		basePath: absPath,
		logger:   log.WithComponent("file_store"),
	}, nil
}

// FileURI renders an absolute path as a file:/// locator with forward slashes.
func FileURI(absPath string) string {
	p := filepath.ToSlash(filepath.Clean(absPath))
	if !strings.HasPrefix(p, "/") {
		// Windows drive paths: C:/x -> /C:/x
		p = "/" + p
	}
	return fileScheme + p
}

// PathFromURI converts a file:/// locator back to an OS path.
func PathFromURI(locator string) (string, error) {
	if !strings.HasPrefix(locator, fileScheme+"/") {
		return "", ErrInvalidLocator
	}
	p := strings.TrimPrefix(locator, fileScheme)
	if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.Clean(filepath.FromSlash(p)), nil
}

func (f *Filesystem) Locate(ownerID, filename string) (string, error) {
	key, err := objectKey(ownerID, filename)
	if err != nil {
		return "", err
	}
	return FileURI(filepath.Join(f.basePath, filepath.FromSlash(key))), nil
}

func (f *Filesystem) Write(ctx context.Context, locator, contentType string, r io.Reader) (int64, error) {
	path, err := f.resolve(locator)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("write file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("rename temp file: %w", err)
	}

	return n, nil
}

func (f *Filesystem) Exists(ctx context.Context, locator string) (bool, error) {
	path, err := f.resolve(locator)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat file: %w", err)
	}
	return true, nil
}

func (f *Filesystem) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	path, err := f.resolve(locator)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (f *Filesystem) Delete(ctx context.Context, locator string) error {
	path, err := f.resolve(locator)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove file: %w", err)
	}

	// Drop the owner directory once its last file is gone.
	dir := filepath.Dir(path)
	if dir != f.basePath {
		if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
			if err := os.Remove(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
				f.logger.Warn().Err(err).Str("dir", dir).Msg("failed to remove empty directory")
			}
		}
	}
	return nil
}

// resolve maps a locator to a path and rejects anything outside basePath.
func (f *Filesystem) resolve(locator string) (string, error) {
	path, err := PathFromURI(locator)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(f.basePath, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidLocator
	}
	return path, nil
}
