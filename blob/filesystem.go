package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileSystemStore stores each blob as a file named by its key:
//
//	<root>/
//	  content/
//	    <checksum>
type FileSystemStore struct {
	root       string
	contentDir string
}

var _ Store = (*FileSystemStore)(nil)

// NewFileSystemStore creates the directory layout under root.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	contentDir := filepath.Join(root, "content")
	if err := os.MkdirAll(contentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &FileSystemStore{root: root, contentDir: contentDir}, nil
}

// Put writes the blob atomically. Storing an existing key only drains r.
func (s *FileSystemStore) Put(_ context.Context, key string, r io.Reader, size int64) error {
	if !validKey(key) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	destPath := filepath.Join(s.contentDir, key)

	if _, err := os.Stat(destPath); err == nil {
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		if written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}
	return writeFile(destPath, r, size)
}

func (s *FileSystemStore) Get(_ context.Context, key string, w io.Writer) error {
	if !validKey(key) {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	f, err := os.Open(filepath.Join(s.contentDir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
