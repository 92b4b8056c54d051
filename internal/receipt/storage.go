package receipt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidPath is returned for a stored path that leaves the storage root
var ErrInvalidPath = errors.New("invalid storage path")

// Storage defines the interface for storing uploaded receipt PDFs
type Storage interface {
	// Save stores the file under a name derived from id and filename and
	// returns the stored path
	Save(id, filename string, data []byte) (string, error)

	// Get retrieves a stored file
	Get(path string) ([]byte, error)

	// Delete removes a stored file
	Delete(path string) error
}

// LocalStorage keeps receipt PDFs in a directory on disk
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new LocalStorage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
	}, nil
}

// Save writes the file as "<id>_<sanitized filename>"
func (l *LocalStorage) Save(id, filename string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	if err := os.WriteFile(filepath.Join(l.basePath, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return name, nil
}

// Get reads a stored file
func (l *LocalStorage) Get(path string) ([]byte, error) {
	fullPath, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file
func (l *LocalStorage) Delete(path string) error {
	fullPath, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

func (l *LocalStorage) resolve(path string) (string, error) {
	if path == "" || path != filepath.Base(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return filepath.Join(l.basePath, path), nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// sanitizeFilename reduces an uploaded name to a short, plain base name
// with a .pdf extension. Receipt downloads often carry long names with dates
// and punctuation.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	filename = strings.TrimSuffix(filename, filepath.Ext(filename))

	base := unsafeChars.ReplaceAllString(filename, "")
	base = strings.TrimSpace(spaceRuns.ReplaceAllString(base, " "))
	base = strings.ReplaceAll(base, " ", "_")

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ".pdf"
}
