package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FSBackend stores encrypted objects as files under a local directory. It is
// the development/offline counterpart of the S3 backend; both sit behind the
// same Backend interface.
type FSBackend struct {
	provider Provider
	dir      string
}

func NewFSBackend(provider Provider, dir string) (*FSBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &StorageError{Provider: provider, Retryable: false, Err: err}
	}
	return &FSBackend{provider: provider, dir: dir}, nil
}

func (b *FSBackend) Upload(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", b.wrap(err)
	}
	pointer := fmt.Sprintf("%s/%s", time.Now().UTC().Format("2006/01/02"), uuid.NewString())
	path := filepath.Join(b.dir, filepath.FromSlash(pointer))
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", b.wrap(err)
	}

	// write-then-rename so a crash never leaves a partial object
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return "", b.wrap(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", b.wrap(err)
	}
	return pointer, nil
}

func (b *FSBackend) Download(ctx context.Context, pointer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, b.wrap(err)
	}
	body, err := os.ReadFile(filepath.Join(b.dir, filepath.FromSlash(pointer)))
	if err != nil {
		return nil, b.wrap(err)
	}
	return body, nil
}

func (b *FSBackend) Delete(ctx context.Context, pointer string) error {
	if err := ctx.Err(); err != nil {
		return b.wrap(err)
	}
	err := os.Remove(filepath.Join(b.dir, filepath.FromSlash(pointer)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return b.wrap(err)
	}
	return nil
}

func (b *FSBackend) wrap(err error) error {
	return normalizeErr(b.provider, err, false)
}
