package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
)

// Local reads and writes files under an upload directory.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Dir is the upload directory relative refs are resolved against.
func (l *Local) Dir() string { return l.dir }

func (l *Local) resolve(ref string) string {
	if filepath.IsAbs(ref) {
		return filepath.Clean(ref)
	}
	return filepath.Join(l.dir, ref)
}

func (l *Local) Fetch(_ context.Context, ref string) (string, func(), error) {
	path := l.resolve(ref)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, common.NewAppError("FILE_NOT_FOUND", "uploaded file "+ref+" does not exist", common.ErrNotFound)
		}
		return "", nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, common.NewAppError("FILE_INVALID", "uploaded file "+ref+" is not a regular file", common.ErrInvalidInput)
	}
	return path, noop, nil
}

// Put writes r to dir/name via a temp file and rename, and returns name as the ref.
func (l *Local) Put(_ context.Context, name string, r io.Reader) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", common.NewAppError("FILE_INVALID", "invalid upload name "+name, common.ErrInvalidInput)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp upload: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, name)); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	return name, nil
}

func (l *Local) Delete(_ context.Context, ref string) error {
	if err := os.Remove(l.resolve(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload %s: %w", ref, err)
	}
	return nil
}
