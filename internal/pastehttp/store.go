// Package pastehttp is the paste submission and retrieval surface the
// admission gate protects.
package pastehttp

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// Paste is the stored submission. Body is opaque to the server; clients are
// expected to encrypt before submitting.
type Paste struct {
	ID      string    `json:"id"`
	Body    []byte    `json:"body"`
	Created time.Time `json:"created"`
}

// ErrNotFound is returned by Get for unknown or invalid ids.
var ErrNotFound = xerrors.New("paste not found")

var idPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

// Store keeps pastes as one JSON file per paste under a base directory.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, xerrors.Wrapf(err, "create paste dir %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Put stores body under a fresh random id and returns the paste.
func (s *Store) Put(body []byte) (Paste, error) {
	var idBytes [8]byte
	if _, err := rand.Read(idBytes[:]); err != nil {
		return Paste{}, xerrors.Wrap(err, "generate paste id")
	}

	p := Paste{
		ID:      hex.EncodeToString(idBytes[:]),
		Body:    body,
		Created: time.Now().UTC(),
	}

	data, err := json.Marshal(p)
	if err != nil {
		return Paste{}, xerrors.Wrap(err, "encode paste")
	}

	// temp-then-rename, same discipline as the rate table
	tmp, err := os.CreateTemp(s.dir, p.ID+".tmp-*")
	if err != nil {
		return Paste{}, xerrors.Wrapf(err, "create temp paste in %s", s.dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Paste{}, xerrors.Wrapf(err, "write temp paste %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return Paste{}, xerrors.Wrapf(err, "close temp paste %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return Paste{}, xerrors.Wrapf(err, "chmod temp paste %s", tmpName)
	}
	if err := os.Rename(tmpName, s.path(p.ID)); err != nil {
		return Paste{}, xerrors.Wrapf(err, "persist paste %s", p.ID)
	}
	return p, nil
}

// Get loads a paste by id. Ids that don't match the generated shape are
// rejected before touching the filesystem.
func (s *Store) Get(id string) (Paste, error) {
	if !idPattern.MatchString(id) {
		return Paste{}, ErrNotFound
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Paste{}, ErrNotFound
		}
		return Paste{}, xerrors.Wrapf(err, "read paste %s", id)
	}
	var p Paste
	if err := json.Unmarshal(data, &p); err != nil {
		return Paste{}, xerrors.Wrapf(err, "decode paste %s", id)
	}
	return p, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}
