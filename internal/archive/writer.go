package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ulikunitz/xz"
)

// Entry is one file of a bundle.
type Entry struct {
	Name string
	Data []byte
}

// Write streams the entries as an xz-compressed tar. Every header carries
// modTime so identical input yields identical bytes.
func Write(w io.Writer, entries []Entry, modTime time.Time) error {
	xzw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("xz writer: %w", err)
	}
	tw := tar.NewWriter(xzw)

	for _, e := range entries {
		header := &tar.Header{
			Name:     e.Name,
			Mode:     0644,
			Size:     int64(len(e.Data)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header %s: %w", e.Name, err)
		}
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("write %s: %w", e.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return xzw.Close()
}

// WriteFile writes the bundle to path via a temporary file, creating parent
// directories as needed.
func WriteFile(path string, entries []Entry, modTime time.Time) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := Write(tmp, entries, modTime); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
