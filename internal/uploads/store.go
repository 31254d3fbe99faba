// Package uploads persists uploaded image artifacts to a directory and serves them back by name.
package uploads

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("upload not found")
	ErrInvalidName = errors.New("invalid upload name")
)

// Store is a flat directory of image artifacts named {id}_{sanitized original}.
// Every write uses a fresh name, so concurrent saves never collide.
type Store struct {
	dir string
}

// NewStore creates the directory if needed and returns a Store rooted at it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir: %w", err)
	}
	return &Store{dir: abs}, nil
}

// Dir returns the absolute path of the upload directory.
func (s *Store) Dir() string { return s.dir }

// Exists reports whether the upload directory is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// Save writes data under StoredName(id, original) and returns that name.
// The file appears atomically: it is written to a temp file and renamed.
func (s *Store) Save(id uuid.UUID, original string, data []byte) (string, error) {
	name := StoredName(id, original)
	dst := filepath.Join(s.dir, name)

	if _, err := os.Lstat(dst); err == nil {
		return "", fmt.Errorf("save upload %s: %w", name, fs.ErrExist)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("save upload %s: %w", name, err)
	}

	return name, nil
}

// Open returns the stored artifact with the given name. Names that could
// escape the directory are rejected with ErrInvalidName.
func (s *Store) Open(name string) (*os.File, fs.FileInfo, error) {
	if !validName(name) {
		return nil, nil, ErrInvalidName
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open upload %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("stat upload %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, nil, ErrNotFound
	}
	return f, info, nil
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return false
	}
	return filepath.Base(name) == name
}
