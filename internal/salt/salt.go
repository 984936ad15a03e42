// Package salt provisions the HMAC secret that keys client identity digests.
//
// The secret is deployment-scoped: rotating it re-keys every identity and
// resets the rate-limit history, which is sometimes exactly what an operator
// wants after an abuse wave.
package salt

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ahuahuachi/PrivateBin/internal/xerrors"
)

// Provider supplies the digest secret.
type Provider interface {
	Secret(ctx context.Context) ([]byte, error)
}

const saltBytes = 32

// FileProvider loads the salt from a file, generating and persisting a random
// one on first use.
type FileProvider struct {
	Path string
}

func (p FileProvider) Secret(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.Path)
	if err == nil {
		secret, derr := hex.DecodeString(strings.TrimSpace(string(data)))
		if derr != nil {
			return nil, xerrors.Wrapf(derr, "salt file %s is not hex", p.Path)
		}
		if len(secret) == 0 {
			return nil, xerrors.Newf("salt file %s is empty", p.Path)
		}
		return secret, nil
	}
	if !os.IsNotExist(err) {
		return nil, xerrors.Wrapf(err, "read salt file %s", p.Path)
	}

	secret := make([]byte, saltBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, xerrors.Wrap(err, "generate salt")
	}

	// temp-then-rename so a crash never leaves a partial salt behind
	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, xerrors.Wrapf(err, "create salt dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.Path)+".tmp-*")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create temp salt in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(hex.EncodeToString(secret) + "\n"); err != nil {
		tmp.Close()
		return nil, xerrors.Wrapf(err, "write temp salt %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return nil, xerrors.Wrapf(err, "close temp salt %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return nil, xerrors.Wrapf(err, "chmod temp salt %s", tmpName)
	}
	if err := os.Rename(tmpName, p.Path); err != nil {
		return nil, xerrors.Wrapf(err, "persist salt %s", p.Path)
	}
	return secret, nil
}
