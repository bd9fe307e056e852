package blob

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/agentstation/fundingscape/pkg/constants"
	"github.com/agentstation/fundingscape/pkg/errors"
)

const tempPrefix = ".tmp-"

// Filesystem stores each key as a file under root. Writes go to a temp file
// in the same directory and are renamed into place, so a reader never sees a
// partial file.
type Filesystem struct {
	root string
}

// NewFilesystem returns a store rooted at root, creating it if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, errors.NewConfigError("cache", "filesystem root is empty", nil)
	}
	if err := os.MkdirAll(root, constants.DirPermissions); err != nil {
		return nil, errors.WrapIO("create", root, err)
	}
	return &Filesystem{root: root}, nil
}

// Root returns the store directory.
func (f *Filesystem) Root() string { return f.root }

func (f *Filesystem) path(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(k)), nil
}

// Get reads key.
func (f *Filesystem) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) //nolint:gosec // path is sanitized and rooted
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewNotFoundError("blob", key)
	}
	if err != nil {
		return nil, errors.WrapIO("read", p, err)
	}
	return data, nil
}

// Put writes key atomically.
func (f *Filesystem) Put(_ context.Context, key string, data []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return errors.WrapIO("create", dir, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", tmp.Name(), err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.WrapIO("write", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapIO("close", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), constants.FilePermissions); err != nil {
		return errors.WrapIO("write", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return errors.WrapIO("write", p, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (f *Filesystem) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.WrapIO("delete", p, err)
	}
	return nil
}

// List returns the keys starting with prefix, sorted. Temp files are skipped.
func (f *Filesystem) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errors.WrapIO("read", f.root, err)
	}
	slices.Sort(keys)
	return keys, nil
}
