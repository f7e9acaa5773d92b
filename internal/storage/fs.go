package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// FS implements Blob on a local directory tree. Keys map to relative paths
// under the root; path traversal outside the root is rejected.
type FS struct {
	root string
}

// NewFS creates a filesystem blob store rooted at dir.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: resolve root %s", dir)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, eris.Wrapf(err, "storage: create root %s", abs)
	}
	return &FS{root: abs}, nil
}

func (f *FS) path(key string) (string, error) {
	p := filepath.Join(f.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, f.root+string(filepath.Separator)) && p != f.root {
		return "", eris.Errorf("storage: key %q escapes root", key)
	}
	return p, nil
}

// Get returns the stored bytes for key.
func (f *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "storage: get cancelled")
	}
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "storage: read %s", key)
	}
	return data, nil
}

// Put stores bytes under key, creating parent directories as needed.
func (f *FS) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "storage: put cancelled")
	}
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return eris.Wrapf(err, "storage: create dir for %s", key)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return eris.Wrapf(err, "storage: write %s", key)
	}
	return nil
}
