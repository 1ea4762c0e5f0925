// Package cas keeps rendered stemma artifacts addressed by their BLAKE3
// digest. Re-rendering an identical tree deduplicates, and a digest handed to
// a client always resolves to the same bytes.
package cas

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// Store is a directory of blobs sharded by the first byte of their digest:
// <root>/<d[0:2]>/<digest>.
type Store struct {
	root string
}

// NewStore opens the store at root, creating the directory if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

func (s *Store) path(digest string) string {
	return filepath.Join(s.root, digest[:2], digest)
}

// Put writes data and returns its digest. Existing blobs are left untouched.
func (s *Store) Put(data []byte) (string, error) {
	digest := Digest(data)
	dst := s.path(digest)
	if _, err := os.Stat(dst); err == nil {
		return digest, nil
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create shard %s: %w", filepath.Base(dir), err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", err
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), dst)
	}
	if werr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write artifact %s: %w", digest, werr)
	}
	return digest, nil
}

// Get reads a blob. A malformed digest is a *errors.ValidationError and an
// absent one a *errors.NotFoundError.
func (s *Store) Get(digest string) ([]byte, error) {
	if !ValidDigest(digest) {
		return nil, errors.NewValidation("digest", "expected 64 lowercase hex characters")
	}
	data, err := os.ReadFile(s.path(digest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewNotFound("artifact", digest)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", digest, err)
	}
	return data, nil
}

// Has reports whether the blob exists.
func (s *Store) Has(digest string) bool {
	if !ValidDigest(digest) {
		return false
	}
	_, err := os.Stat(s.path(digest))
	return err == nil
}

// Remove deletes a blob. Removing an absent blob is not an error.
func (s *Store) Remove(digest string) error {
	if !ValidDigest(digest) {
		return errors.NewValidation("digest", "expected 64 lowercase hex characters")
	}
	if err := os.Remove(s.path(digest)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
