// Package validation checks user-supplied file names, paths and uploads
// before they reach the ingest and archive packages.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

// Limits on user input.
const (
	// MaxUploadSize bounds a single transcription upload (32 MB).
	MaxUploadSize = 32 << 20
	// MaxFilenameLength is the longest accepted file name.
	MaxFilenameLength = 255
	// MaxPathLength is the longest accepted path.
	MaxPathLength = 4096
	// sniffLength is how much of an upload is inspected for its content type.
	sniffLength = 3072
)

var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrInvalidFilename = errors.New("invalid filename")
	ErrPathTooLong     = errors.New("path too long")
	ErrEmptyPath       = errors.New("path cannot be empty")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTypeMismatch    = errors.New("file content does not match its extension")
)

// SanitizePath cleans userPath and makes sure it stays inside baseDir. The
// result is relative to baseDir.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	clean := filepath.Clean(userPath)
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	rel, err := filepath.Rel(absBase, filepath.Join(absBase, clean))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return clean, nil
}

// ValidatePath rejects empty, overlong and control-character paths.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	for _, r := range path {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	return nil
}

// ValidateFilename checks a bare file name (no directories).
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return ErrInvalidFilename
	case len(name) > MaxFilenameLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidFilename, MaxFilenameLength)
	case name == "." || name == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	for _, r := range name {
		if r == 0 || unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	return nil
}

// SanitizeFilename turns a client-supplied name into a safe base name.
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", `\`, "_").Replace(name)
	name = strings.Map(func(r rune) rune {
		if r == 0 || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, "-")
	if err := ValidateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

// Kind is the class of an accepted file.
type Kind string

const (
	KindTEI    Kind = "tei"
	KindJSON   Kind = "json"
	KindBundle Kind = "bundle"
)

// KindFromName classifies a file by its extension.
func KindFromName(name string) (Kind, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".tar.gz"):
		return KindBundle, nil
	case strings.HasSuffix(lower, ".xml"), strings.HasSuffix(lower, ".tei"):
		return KindTEI, nil
	case strings.HasSuffix(lower, ".json"):
		return KindJSON, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Ext(name))
}

// DetectUpload sniffs the start of r and checks that the content agrees with
// the extension of filename. It returns the kind and a reader that replays
// the sniffed bytes.
func DetectUpload(r io.Reader, filename string) (Kind, io.Reader, error) {
	kind, err := KindFromName(filename)
	if err != nil {
		return "", nil, err
	}

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, fmt.Errorf("failed to read file header: %w", err)
	}
	head = head[:n]
	replay := io.MultiReader(bytes.NewReader(head), r)

	mt := mimetype.Detect(head)
	if !matches(kind, mt) {
		return "", nil, fmt.Errorf("%w: %s looks like %s", ErrTypeMismatch, filename, mt.String())
	}
	return kind, replay, nil
}

func matches(kind Kind, mt *mimetype.MIME) bool {
	switch kind {
	case KindTEI:
		return mt.Is("text/xml") || mt.Is("application/xml") || isXMLDescendant(mt)
	case KindJSON:
		return mt.Is("application/json") || mt.Is("text/plain")
	case KindBundle:
		return mt.Is("application/x-xz") || mt.Is("application/gzip")
	}
	return false
}

func isXMLDescendant(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/xml") {
			return true
		}
	}
	return false
}
