package backup

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"dump-rotator/internal/config"
)

const azureUploadBufferSize = 4 * 1024 * 1024

// AzureStore implements OffsiteStore for Azure Blob Storage
type AzureStore struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

// NewAzureStore creates a new AzureStore instance
func NewAzureStore(cfg config.AzureConfig, prefix string) (*AzureStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewStorageError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
	if err != nil {
		return nil, NewStorageError("failed to create Azure credentials", err)
	}

	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	serviceURL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net", cfg.AccountName))
	if err != nil {
		return nil, NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureStore{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(cfg.ContainerName),
		containerName: cfg.ContainerName,
		prefix:        prefix,
	}, nil
}

// Name implements OffsiteStore
func (a *AzureStore) Name() string {
	return "azure://" + a.containerName + "/" + a.prefix
}

// Upload streams localPath into a block blob
func (a *AzureStore) Upload(ctx context.Context, localPath, key string) error {
	body, _, err := openUploadSource(ctx, localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer body.Close()

	blobURL := a.containerURL.NewBlockBlobURL(key)
	_, err = azblob.UploadStreamToBlockBlob(ctx, body, blobURL, azblob.UploadStreamToBlockBlobOptions{
		BufferSize: azureUploadBufferSize,
		MaxBuffers: 4,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: "application/octet-stream",
		},
	})
	if err != nil {
		return NewStorageError("failed to upload artifact to Azure", err).WithContext("key", key)
	}
	return nil
}

// List returns every blob under the prefix
func (a *AzureStore) List(ctx context.Context) ([]RemoteObject, error) {
	var objects []RemoteObject

	for marker := (azblob.Marker{}); marker.NotDone(); {
		listResponse, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: a.prefix,
		})
		if err != nil {
			return nil, NewStorageError("failed to list blobs from Azure", err)
		}

		for _, blob := range listResponse.Segment.BlobItems {
			obj := RemoteObject{
				Key:          blob.Name,
				LastModified: blob.Properties.LastModified,
			}
			if blob.Properties.ContentLength != nil {
				obj.Size = *blob.Properties.ContentLength
			}
			objects = append(objects, obj)
		}

		marker = listResponse.NextMarker
	}
	return objects, nil
}

// Delete removes one blob together with its snapshots
func (a *AzureStore) Delete(ctx context.Context, key string) error {
	blobURL := a.containerURL.NewBlockBlobURL(key)
	_, err := blobURL.Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		return NewStorageError(fmt.Sprintf("failed to delete blob %s", key), err)
	}
	return nil
}

// HealthCheck verifies that the container is accessible and listable
func (a *AzureStore) HealthCheck(ctx context.Context) error {
	_, err := a.containerURL.GetProperties(ctx, azblob.LeaseAccessConditions{})
	if err != nil {
		return NewStorageError("Azure health check failed: container not accessible", err)
	}

	_, err = a.containerURL.ListBlobsFlatSegment(ctx, azblob.Marker{}, azblob.ListBlobsSegmentOptions{
		Prefix:     a.prefix,
		MaxResults: 1,
	})
	if err != nil {
		return NewStorageError("Azure health check failed: cannot list blobs", err)
	}
	return nil
}
