// Package storage keeps the uploaded CV files. Records refer to files by a
// locator: a file:/// URI for the filesystem backend or gs://bucket/key for
// Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"unicode"
)

// Storage errors returned by FileStore implementations.
var (
	// ErrNotFound indicates the locator does not point at a stored file.
	ErrNotFound = errors.New("storage: file not found")

	// ErrInvalidLocator indicates a malformed locator or one outside the store.
	ErrInvalidLocator = errors.New("storage: invalid locator")
)

// FileStore is durable byte storage addressable by locator.
type FileStore interface {
	// Locate returns the canonical locator for ownerID's file named filename.
	// The same inputs always produce the same locator.
	Locate(ownerID, filename string) (string, error)

	// Write stores r at locator, replacing any previous content.
	Write(ctx context.Context, locator, contentType string, r io.Reader) (int64, error)

	// Exists reports whether a file is stored at locator.
	Exists(ctx context.Context, locator string) (bool, error)

	// Open returns the stored content. Returns ErrNotFound if missing.
	Open(ctx context.Context, locator string) (io.ReadCloser, error)

	// Delete removes the file. Deleting a missing file is not an error.
	Delete(ctx context.Context, locator string) error
}

// SanitizeFilename reduces an uploaded filename to a single safe path element.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		}
		return r
	}, name)

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == ".." || cleaned == "/" {
		return "upload"
	}
	return cleaned
}

// objectKey is the backend-relative key for ownerID's file.
func objectKey(ownerID, filename string) (string, error) {
	if ownerID == "" || strings.ContainsAny(ownerID, `/\.`) {
		return "", ErrInvalidLocator
	}
	return ownerID + "/" + SanitizeFilename(filename), nil
}
