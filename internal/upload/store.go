// Package upload stores files shared in chat and serves them back. The chat
// core only ever sees the reference returned by a save: a URL under
// /uploads/ and the file's original name.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

// URLPrefix is the path under which stored files are served.
const URLPrefix = "/uploads/"

// Store errors.
var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid file name")
)

// maxNameAttempts bounds how many timestamps Save tries before giving up on a
// name collision.
const maxNameAttempts = 16

var whitespace = regexp.MustCompile(`\s+`)

// File is the reference handed back to the uploader.
type File struct {
	URL          string `json:"fileUrl"`
	OriginalName string `json:"originalName"`
}

// Store persists uploaded bytes and resolves stored names back to paths.
type Store interface {
	Save(originalName string, r io.Reader) (File, error)
	Path(name string) (string, error)
	Dir() string
}

// DiskStore keeps uploads as plain files in a single directory.
type DiskStore struct {
	dir string
	now func() time.Time
}

// NewDiskStore creates dir if needed and returns a store rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir, now: time.Now}, nil
}

// Dir returns the directory files are written to.
func (s *DiskStore) Dir() string {
	return s.dir
}

// StorageName builds the on-disk name for an upload: the Unix millisecond
// timestamp, a dash, and the original base name with whitespace runs replaced
// by underscores.
func StorageName(at time.Time, originalName string) string {
	base := filepath.Base(filepath.Clean("/" + originalName))
	if base == "/" || base == "." {
		base = "file"
	}
	return strconv.FormatInt(at.UnixMilli(), 10) + "-" + whitespace.ReplaceAllString(base, "_")
}

// Save writes r to a new file and returns its public reference. Existing
// files are never overwritten.
func (s *DiskStore) Save(originalName string, r io.Reader) (File, error) {
	at := s.now()

	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := StorageName(at.Add(time.Duration(attempt)*time.Millisecond), originalName)
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return File{}, fmt.Errorf("create %s: %w", name, err)
		}

		if _, err := io.Copy(f, r); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return File{}, fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(f.Name())
			return File{}, fmt.Errorf("close %s: %w", name, err)
		}

		return File{URL: URLPrefix + name, OriginalName: originalName}, nil
	}

	return File{}, fmt.Errorf("save %s: no free storage name", originalName)
}

// Path resolves a stored name to a path on disk. Names with directory
// components are rejected.
func (s *DiskStore) Path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	return path, nil
}
