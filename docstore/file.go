package docstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists documents as files in a directory, one file per
// document key. Writes go through a temp file plus rename so a crash
// never leaves a half-written document behind.
type FileStore struct {
	// dir is the storage directory.
	dir string
}

const fileExt = ".mdcrdt"

// NewFileStore creates a FileStore rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// SaveDocument writes the encoded document to disk atomically.
func (s *FileStore) SaveDocument(ctx context.Context, key string, data []byte) error {
	path := s.path(key)

	tmp, err := os.CreateTemp(s.dir, "write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// LoadDocument reads the encoded document from disk.
func (s *FileStore) LoadDocument(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDocumentNotFound{Key: key}
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// ListDocuments returns every stored document key.
func (s *FileStore) ListDocuments(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			log.Warnw("skipping file with undecodable name", "file", name)
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// DeleteDocument removes the document file.
func (s *FileStore) DeleteDocument(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

// path maps a document key to its file path; keys are escaped so any
// string is a valid key.
func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+fileExt)
}
