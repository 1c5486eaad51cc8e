package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// RemoteObject is one artifact copy held by an offsite store
type RemoteObject struct {
	Key          string    `json:"key" yaml:"key"`
	Size         int64     `json:"size" yaml:"size"`
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
}

// OffsiteStore abstracts the remote backends artifacts are replicated to
type OffsiteStore interface {
	// Upload copies the file or directory at localPath to key
	Upload(ctx context.Context, localPath, key string) error
	// List returns the objects under the store's prefix
	List(ctx context.Context) ([]RemoteObject, error)
	// Delete removes the object stored under key
	Delete(ctx context.Context, key string) error
	// Name identifies the backend in logs
	Name() string
	// HealthCheck verifies the backend is reachable and writable
	HealthCheck(ctx context.Context) error
}

// ObjectKeyFor returns the remote key of an artifact. Directory artifacts are
// uploaded as a plain tar stream so remote copies are always single objects.
func ObjectKeyFor(prefix string, artifact *Artifact) string {
	name := filepath.Base(artifact.Path)
	if artifact.Format == FormatDirectory {
		name += "." + FormatTar.Extension()
	}
	return prefix + name
}

// openUploadSource opens localPath for reading. Directories are streamed as tar
// through a pipe; the returned size is -1 in that case.
func openUploadSource(ctx context.Context, localPath string) (io.ReadCloser, int64, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	if !info.IsDir() {
		f, err := os.Open(localPath)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to open %s: %w", localPath, err)
		}
		return f, info.Size(), nil
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := WriteTar(ctx, pw, localPath)
		pw.CloseWithError(err)
	}()
	return pr, -1, nil
}
