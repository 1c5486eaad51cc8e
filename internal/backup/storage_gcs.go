package backup

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"dump-rotator/internal/config"
)

// GCSStore implements OffsiteStore for Google Cloud Storage
type GCSStore struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSStore creates a new GCSStore instance
func NewGCSStore(ctx context.Context, cfg config.GCSConfig, prefix string) (*GCSStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewStorageError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if cfg.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsPath))
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	// Without a credentials file the default credentials apply
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, NewStorageError("failed to create GCS client", err)
	}

	return &GCSStore{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     prefix,
	}, nil
}

// Name implements OffsiteStore
func (g *GCSStore) Name() string {
	return "gs://" + g.bucketName + "/" + g.prefix
}

// Upload streams localPath into an object
func (g *GCSStore) Upload(ctx context.Context, localPath, key string) error {
	body, _, err := openUploadSource(ctx, localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer body.Close()

	writer := g.client.Bucket(g.bucketName).Object(key).NewWriter(ctx)
	writer.ContentType = "application/octet-stream"

	if _, err := io.Copy(writer, body); err != nil {
		writer.Close()
		return NewStorageError("failed to upload artifact to GCS", err).WithContext("key", key)
	}
	if err := writer.Close(); err != nil {
		return NewStorageError("failed to finalize GCS upload", err).WithContext("key", key)
	}
	return nil
}

// List returns every object under the prefix
func (g *GCSStore) List(ctx context.Context) ([]RemoteObject, error) {
	var objects []RemoteObject

	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: g.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, NewStorageError("failed to list objects from GCS", err)
		}
		objects = append(objects, RemoteObject{
			Key:          attrs.Name,
			Size:         attrs.Size,
			LastModified: attrs.Updated,
		})
	}
	return objects, nil
}

// Delete removes one object
func (g *GCSStore) Delete(ctx context.Context, key string) error {
	if err := g.client.Bucket(g.bucketName).Object(key).Delete(ctx); err != nil {
		return NewStorageError("failed to delete object from GCS", err).WithContext("key", key)
	}
	return nil
}

// HealthCheck verifies that the bucket is accessible and listable
func (g *GCSStore) HealthCheck(ctx context.Context) error {
	bucket := g.client.Bucket(g.bucketName)
	if _, err := bucket.Attrs(ctx); err != nil {
		return NewStorageError("GCS health check failed: bucket not accessible", err)
	}

	it := bucket.Objects(ctx, &storage.Query{Prefix: g.prefix})
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return NewStorageError("GCS health check failed: cannot list objects", err)
	}
	return nil
}

// Close releases the underlying client
func (g *GCSStore) Close() error {
	return g.client.Close()
}
