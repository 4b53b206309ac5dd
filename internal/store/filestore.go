package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
)

const fileExt = ".json"

// FileStore persists each document as <dir>/<name>.json. Writes go through a
// temp file and rename so a crash mid-write never corrupts a document.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the directory when missing and returns the store.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create document directory %q: %w", dir, err)
	}
	return &FileStore{
		dir: dir,
		log: logger.Named("filestore"),
	}, nil
}

func (s *FileStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("store: invalid document name %q", name)
	}
	return filepath.Join(s.dir, name+fileExt), nil
}

// Save writes the document as indented JSON, suitable for reading and editing
// outside the tool.
func (s *FileStore) Save(_ context.Context, doc *schemas.Document) error {
	if doc == nil || doc.Name == "" {
		return fmt.Errorf("store: document must have a name")
	}
	path, err := s.path(doc.Name)
	if err != nil {
		return err
	}

	canonical, err := document.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document %q: %w", doc.Name, err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, canonical, "", "  "); err != nil {
		return fmt.Errorf("failed to format document %q: %w", doc.Name, err)
	}
	buf.WriteByte('\n')

	tmp, err := os.CreateTemp(s.dir, doc.Name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write document %q: %w", doc.Name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace document %q: %w", doc.Name, err)
	}
	s.log.Debug("Document saved", zap.String("name", doc.Name), zap.String("path", path))
	return nil
}

// Load reads and parses a document file. Missing files return ErrNotFound.
func (s *FileStore) Load(_ context.Context, name string) (*schemas.Document, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read document %q: %w", name, err)
	}
	doc, perr := document.Parse(raw)
	if perr != nil {
		return nil, fmt.Errorf("document file %q is not valid: %w", path, perr)
	}
	// The filename is authoritative so renames on disk carry through.
	doc.Name = name
	return doc, nil
}

// List returns the document names present in the directory, sorted.
func (s *FileStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read document directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), fileExt))
	}
	sort.Strings(names)
	return names, nil
}
