// Package artifact locates release archives published under a
// distribution directory laid out as <basedir>/<id>/<id>-<version>.<ext>.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"

	"github.com/spf13/afero"
)

// ErrInvalidBaseURL indicates the public base URL cannot be used to build links
var ErrInvalidBaseURL = errors.New("invalid distribution base URL")

// Store resolves archives on an afero filesystem to public URLs.
type Store struct {
	fs      afero.Fs
	baseDir string
	baseURL *url.URL
}

// New creates a Store. baseURL must be an absolute URL.
func New(fsys afero.Fs, baseDir, baseURL string) (*Store, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidBaseURL, baseURL)
	}
	return &Store{fs: fsys, baseDir: filepath.Clean(baseDir), baseURL: u}, nil
}

// NewOS creates a Store backed by the real filesystem.
func NewOS(baseDir, baseURL string) (*Store, error) {
	return New(afero.NewOsFs(), baseDir, baseURL)
}

// FileName returns the archive name for a project version.
func FileName(id, version, ext string) string {
	return fmt.Sprintf("%s-%s.%s", id, version, ext)
}

// Lookup reports the public URL of the archive if it exists as a regular file.
func (s *Store) Lookup(id, version, ext string) (string, bool, error) {
	name := FileName(id, version, ext)
	fi, err := s.fs.Stat(filepath.Join(s.baseDir, id, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat %s: %w", name, err)
	}
	if !fi.Mode().IsRegular() {
		return "", false, nil
	}
	return s.baseURL.JoinPath(id, name).String(), true, nil
}
