// Package archive reads and writes compressed analysis bundles: a tar stream
// compressed with xz (or gzip when reading) holding a manifest and its files.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// MaxEntrySize bounds a single decompressed bundle entry.
const MaxEntrySize = 64 << 20

var (
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic = []byte{0x1F, 0x8B}
)

// decompress picks the codec from the stream's leading bytes.
func decompress(r io.Reader) (io.Reader, func() error, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("read bundle header: %w", err)
	}
	switch {
	case bytes.HasPrefix(head, xzMagic):
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("xz reader: %w", err)
		}
		return xzr, func() error { return nil }, nil
	case bytes.HasPrefix(head, gzipMagic):
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip reader: %w", err)
		}
		return gzr, gzr.Close, nil
	default:
		return nil, nil, errors.NewUnsupported("bundle compression", "expected xz or gzip")
	}
}

// Read decodes every regular file of a compressed bundle, keyed by entry
// name. Names must be clean relative paths and appear once.
func Read(r io.Reader) (map[string][]byte, error) {
	dr, closeFn, err := decompress(r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	files := make(map[string][]byte)
	tr := tar.NewReader(dr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read entry header: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Name != path.Clean(hdr.Name) || path.IsAbs(hdr.Name) || hdr.Name == ".." || strings.HasPrefix(hdr.Name, "../") {
			return nil, errors.NewParse("bundle", hdr.Name, "unsafe entry name")
		}
		if _, dup := files[hdr.Name]; dup {
			return nil, errors.NewParse("bundle", hdr.Name, "duplicate entry")
		}
		if hdr.Size > MaxEntrySize {
			return nil, errors.NewParse("bundle", hdr.Name, fmt.Sprintf("entry exceeds %d bytes", MaxEntrySize))
		}
		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Name, err)
		}
		files[hdr.Name] = data
	}
}

// ReadAll reads the bundle stored at p.
func ReadAll(p string) (map[string][]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// ReadFile returns one entry of the bundle stored at p.
func ReadFile(p, name string) ([]byte, error) {
	files, err := ReadAll(p)
	if err != nil {
		return nil, err
	}
	data, ok := files[name]
	if !ok {
		return nil, errors.NewNotFound("bundle entry", name)
	}
	return data, nil
}
