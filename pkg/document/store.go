package document

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/matzehuels/corral/pkg/errors"
)

// Store persists named documents.
type Store interface {
	// Save writes the document under the given name, replacing any
	// previous revision.
	Save(ctx context.Context, name string, doc *Document) error

	// Load returns the document stored under name, or an error with code
	// [errors.ErrCodeDocumentNotFound] if none exists.
	Load(ctx context.Context, name string) (*Document, error)

	// Delete removes the document. Deleting a missing document is not an
	// error.
	Delete(ctx context.Context, name string) error

	// List returns the stored document names in sorted order.
	List(ctx context.Context) ([]string, error)
}

// FileStore persists documents as JSON files in a directory.
type FileStore struct {
	mu      sync.RWMutex
	baseDir string
}

// NewFileStore creates a file-based document store.
// If baseDir is empty, defaults to ~/.config/corral/documents/
func NewFileStore(baseDir string) (*FileStore, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home dir: %w", err)
		}
		baseDir = filepath.Join(home, ".config", "corral", "documents")
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) documentPath(name string) string {
	return filepath.Join(s.baseDir, name+".json")
}

func (s *FileStore) Save(ctx context.Context, name string, doc *Document) error {
	if err := validName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "marshal document %q", name)
	}
	path := s.documentPath(name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "write %s", path)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.documentPath(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.ErrCodeDocumentNotFound, "no document %q", name)
		}
		return nil, errors.Wrap(errors.ErrCodeStore, err, "read %s", path)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidDocument, err, "parse %s", path)
	}
	return &doc, nil
}

func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.documentPath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrCodeStore, err, "remove %s", path)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "read document dir")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Path returns the base directory for document files.
func (s *FileStore) Path() string {
	return s.baseDir
}

// validName rejects names that would escape the store directory or map to
// hidden files.
func validName(name string) error {
	if name == "" {
		return errors.New(errors.ErrCodeInvalidName, "document name is empty")
	}
	if strings.ContainsAny(name, "/\\") || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return errors.New(errors.ErrCodeInvalidName, "invalid document name %q", name)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
