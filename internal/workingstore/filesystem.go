package workingstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cms-go/internal/cms"
)

// FileSystemStore keeps one file per working copy under a single directory.
// File names are the query-escaped key, so keys never produce nested paths:
//
//	<root>/
//	  draft%3Aann%40example.com%3Ahello.md
//	  pending%3Aann%40example.com%3Aother.md
type FileSystemStore struct {
	root string
}

var _ cms.ConditionalWorkingStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates the store directory if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create working store directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) path(key string) string {
	return filepath.Join(s.root, url.QueryEscape(key))
}

func (s *FileSystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("failed to read working copy: %w", err)
	}
	return data, nil
}

// Put replaces the file atomically.
func (s *FileSystemStore) Put(ctx context.Context, key string, body []byte) error {
	tmpPath, err := s.writeTemp(body)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// PutIfAbsent links the temp file into place, which fails when the
// destination exists.
func (s *FileSystemStore) PutIfAbsent(ctx context.Context, key string, body []byte) (bool, error) {
	tmpPath, err := s.writeTemp(body)
	if err != nil {
		return false, err
	}
	defer os.Remove(tmpPath)

	if err := os.Link(tmpPath, s.path(key)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link working copy: %w", err)
	}
	return true, nil
}

func (s *FileSystemStore) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete working copy: %w", err)
	}
	return nil
}

func (s *FileSystemStore) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list working store: %w", err)
	}

	keys := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		key, err := url.QueryUnescape(e.Name())
		if err != nil {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// writeTemp writes body to a temp file in the store directory so a later
// rename or link stays on one filesystem.
func (s *FileSystemStore) writeTemp(body []byte) (string, error) {
	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(body); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmpPath, nil
}
