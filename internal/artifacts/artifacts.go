package artifacts

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store keeps uploaded proof images on the local filesystem under a single
// root directory. Filenames carry the submitter ID plus a random discriminator
// so concurrent uploads from the same user never collide.
type Store struct {
	root string
}

// NewStore creates the root directory if needed and returns a Store over it.
func NewStore(root string) (*Store, error) {
	if root == "" {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the store's base directory.
func (s *Store) Root() string {
	return s.root
}

// Save streams the blob to disk and returns the stored path.
func (s *Store) Save(submitterID int64, r io.Reader) (string, error) {
	name := fmt.Sprintf("%d_%s.jpg", submitterID, uuid.NewString())
	path := filepath.Join(s.root, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact %s: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write artifact %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close artifact %s: %w", path, err)
	}
	return path, nil
}

// ModTime stats a stored artifact. A missing file is reported via os.IsNotExist
// on the returned error.
func (s *Store) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Remove deletes a stored artifact.
func (s *Store) Remove(path string) error {
	return os.Remove(path)
}
