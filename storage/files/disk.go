// Package files stores uploaded sheet files on the local filesystem.
package files

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/attenx/attenx/core/sheet"
)

type diskStore struct {
	dir string
}

var _ sheet.FileStore = (*diskStore)(nil) // interface compliance check

// NewDiskStore returns a FileStore rooted at dir. The directory is created
// lazily on the first Save.
func NewDiskStore(dir string) *diskStore {
	return &diskStore{dir: dir}
}

func (s *diskStore) Save(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating upload dir %s", s.dir)
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	dst, err := os.Create(path)
	if err != nil {
		return "", errors.Wrapf(err, "creating %s", path)
	}
	defer func() { _ = dst.Close() }()

	if _, err = io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return path, nil
}

func (s *diskStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}
