package tablestore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Ahuahuachi/PrivateBin/internal/traffic"
	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// FileStore keeps the rate table as a file under a base directory. name is
// the file name within that directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the base directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, xerrors.Wrapf(err, "create table dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	// strip any path components so name cannot escape the base dir
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *FileStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, xerrors.Wrapf(err, "stat %s", s.path(name))
}

func (s *FileStore) Load(_ context.Context, name string) (traffic.Table, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", s.path(name))
	}
	return Decode(data)
}

// Store writes to a temp file in the same directory and renames it over the
// target, so a concurrent reader sees either the old or the new table and
// never a truncated one.
func (s *FileStore) Store(_ context.Context, name string, t traffic.Table) error {
	target := s.path(name)

	tmp, err := os.CreateTemp(s.dir, filepath.Base(name)+".tmp-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp table in %s", s.dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(Encode(t)); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write temp table %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "sync temp table %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrapf(err, "close temp table %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return xerrors.Wrapf(err, "chmod temp table %s", tmpName)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return xerrors.Wrapf(err, "replace table %s", target)
	}
	return nil
}

var _ traffic.Store = (*FileStore)(nil)
