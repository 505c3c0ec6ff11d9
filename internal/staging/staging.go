// Package staging keeps uploaded résumé files on disk next to their
// evaluations.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var write = func(w io.Writer, data []byte) (int, error) { return w.Write(data) }

// ErrInvalidRef is returned for references that escape the staging area.
var ErrInvalidRef = errors.New("invalid staged file reference")

// Area is a directory of uploaded files. Every file gets a random name so
// concurrent uploads never collide.
type Area struct {
	dir string
}

// NewArea creates the directory when needed.
func NewArea(dir string) (*Area, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("staging dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir %s: %w", dir, err)
	}
	return &Area{dir: dir}, nil
}

// Save writes data under a fresh name with the given extension and returns
// the reference relative to the area.
func (a *Area) Save(data []byte, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if strings.ContainsAny(ext, `/\`) {
		return "", fmt.Errorf("invalid extension %q", ext)
	}

	name := uuid.NewString() + ext
	f, err := os.OpenFile(filepath.Join(a.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	if _, err := write(f, data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return name, nil
}

// Path resolves a reference returned by Save.
func (a *Area) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return filepath.Join(a.dir, ref), nil
}

// Open reads a staged file back.
func (a *Area) Open(ref string) ([]byte, error) {
	path, err := a.Path(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (a *Area) Dir() string { return a.dir }
