package images

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/oklog/ulid/v2"
)

var (
	ErrInvalidName = errors.New("invalid image file name")
	ErrNotFound    = errors.New("image not found")
)

var fileNamePattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}\.(png|jpg|jpeg|webp)$`)

// Store keeps full-size originals on local disk under ULID names.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("image directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve image directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &Store{dir: abs}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes data and returns the generated file name.
func (s *Store) Save(data []byte, mediaType string) (string, error) {
	name := ulid.Make().String() + extensionFor(mediaType)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}

// Path resolves name inside the store. Names that are not store-generated
// are rejected, which rules out traversal.
func (s *Store) Path(name string) (string, error) {
	if !fileNamePattern.MatchString(name) {
		return "", ErrInvalidName
	}
	p := filepath.Join(s.dir, name)
	if filepath.Dir(p) != s.dir {
		return "", ErrInvalidName
	}
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return p, nil
}

// ContentType guesses the media type from the file extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func extensionFor(mediaType string) string {
	mediaType, _, _ = strings.Cut(mediaType, ";")
	switch strings.TrimSpace(strings.ToLower(mediaType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
