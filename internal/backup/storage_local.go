package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dump-rotator/internal/config"
)

// LocalStore implements OffsiteStore on a second directory, usually a network mount
type LocalStore struct {
	basePath string
	prefix   string
}

// NewLocalStore creates a new LocalStore instance
func NewLocalStore(cfg config.LocalConfig, prefix string) (*LocalStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewStorageError("invalid local storage configuration", err)
	}

	store := &LocalStore{
		basePath: cfg.Path,
		prefix:   config.NormalizePrefix(prefix),
	}
	if err := os.MkdirAll(store.dir(), 0755); err != nil {
		return nil, NewStorageError("failed to create base directory", err)
	}
	return store, nil
}

// Name implements OffsiteStore
func (l *LocalStore) Name() string {
	return "file://" + l.dir()
}

func (l *LocalStore) dir() string {
	return filepath.Join(l.basePath, filepath.FromSlash(strings.TrimSuffix(l.prefix, "/")))
}

func (l *LocalStore) pathFor(key string) (string, error) {
	p := filepath.Join(l.basePath, filepath.FromSlash(key))
	base := filepath.Clean(l.basePath)
	if !strings.HasPrefix(p, base+string(os.PathSeparator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return p, nil
}

// Upload copies localPath into the store through a temp file and a rename
func (l *LocalStore) Upload(ctx context.Context, localPath, key string) error {
	target, err := l.pathFor(key)
	if err != nil {
		return NewStorageError("invalid object key", err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return NewStorageError("failed to create target directory", err)
	}

	body, _, err := openUploadSource(ctx, localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer body.Close()

	tmp := target + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return NewStorageError("failed to create target file", err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		os.Remove(tmp)
		return NewStorageError("failed to copy artifact", err).WithContext("key", key)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return NewStorageError("failed to sync artifact copy", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return NewStorageError("failed to close artifact copy", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return NewStorageError("failed to move artifact copy into place", err)
	}
	return nil
}

// List returns the files directly under the prefix
func (l *LocalStore) List(ctx context.Context) ([]RemoteObject, error) {
	entries, err := os.ReadDir(l.dir())
	if err != nil {
		return nil, NewStorageError("failed to list local storage", err)
	}

	var objects []RemoteObject
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, RemoteObject{
			Key:          l.prefix + entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}
	return objects, nil
}

// Delete removes one stored file
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	target, err := l.pathFor(key)
	if err != nil {
		return NewStorageError("invalid object key", err)
	}
	if err := os.Remove(target); err != nil {
		return NewStorageError(fmt.Sprintf("failed to delete %s", key), err)
	}
	return nil
}

// HealthCheck verifies that the storage directory accepts writes
func (l *LocalStore) HealthCheck(ctx context.Context) error {
	if err := checkWritable(l.dir()); err != nil {
		return NewStorageError("local storage health check failed: directory not writable", err)
	}
	return nil
}

// checkWritable creates and removes a hidden file in dir
func checkWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
