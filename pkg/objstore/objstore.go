// Package objstore abstracts the object storage that holds source documents.
package objstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Object describes one stored object.
type Object struct {
	Key  string
	Size int64
}

// Store reads and writes objects by bucket and key.
type Store interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	// ListObjects returns keys under prefix whose base name matches pattern
	// (a regular expression, empty for all). Keys ending in "/" are skipped.
	// maxKeys <= 0 means no limit.
	ListObjects(ctx context.Context, bucket, prefix, pattern string, maxKeys int) ([]Object, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Close() error
}

// Matcher compiles a listing pattern. An empty pattern matches everything.
func Matcher(pattern string) (func(key string) bool, error) {
	if pattern == "" {
		return func(string) bool { return true }, nil
	}
	re, err := regexp2.Compile(pattern, regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("invalid object pattern %q: %w", pattern, err)
	}
	return func(key string) bool {
		ok, err := re.MatchString(path.Base(key))
		return err == nil && ok
	}, nil
}

// Dir is a Store backed by a local directory; buckets are subdirectories.
type Dir struct {
	Root string
}

var _ Store = (*Dir)(nil)

// NewDir returns a directory store rooted at root.
func NewDir(root string) *Dir {
	return &Dir{Root: root}
}

func (d *Dir) path(bucket, key string) string {
	return filepath.Join(d.Root, bucket, filepath.FromSlash(key))
}

// GetObject reads one file.
func (d *Dir) GetObject(_ context.Context, bucket, key string) ([]byte, error) {
	data, err := os.ReadFile(d.path(bucket, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// ListObjects walks the bucket directory in lexical order.
func (d *Dir) ListObjects(ctx context.Context, bucket, prefix, pattern string, maxKeys int) ([]Object, error) {
	match, err := Matcher(pattern)
	if err != nil {
		return nil, err
	}

	base := filepath.Join(d.Root, bucket)
	var objects []Object
	err = filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) || !match(key) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		objects = append(objects, Object{Key: key, Size: info.Size()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, err)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	if maxKeys > 0 && len(objects) > maxKeys {
		objects = objects[:maxKeys]
	}
	return objects, nil
}

// PutObject writes a file, creating parent directories.
func (d *Dir) PutObject(_ context.Context, bucket, key string, data []byte, _ string) error {
	p := d.path(bucket, key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close is a no-op.
func (d *Dir) Close() error { return nil }
