package backup

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"dump-rotator/internal/config"
)

// S3Store implements OffsiteStore for Amazon S3 and S3-compatible endpoints
type S3Store struct {
	client   s3iface.S3API
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates a new S3Store instance
func NewS3Store(cfg config.S3Config, prefix string) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, NewStorageError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	// Without static keys the default credential chain applies
	if cfg.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, NewStorageError("failed to create AWS session", err)
	}

	client := s3.New(sess)
	return &S3Store{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

// Name implements OffsiteStore
func (s *S3Store) Name() string {
	return "s3://" + s.bucket + "/" + strings.TrimSuffix(s.prefix, "/")
}

// Upload streams localPath to the bucket with a multipart upload
func (s *S3Store) Upload(ctx context.Context, localPath, key string) error {
	body, _, err := openUploadSource(ctx, localPath)
	if err != nil {
		return NewStorageError("failed to open artifact for upload", err)
	}
	defer body.Close()

	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return NewStorageError("failed to upload artifact to S3", err).WithContext("key", key)
	}
	return nil
}

// List returns every object under the prefix
func (s *S3Store) List(ctx context.Context) ([]RemoteObject, error) {
	var objects []RemoteObject

	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			objects = append(objects, RemoteObject{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, NewStorageError("failed to list objects from S3", err)
	}
	return objects, nil
}

// Delete removes one object
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return NewStorageError("failed to delete object from S3", err).WithContext("key", key)
	}
	return nil
}

// HealthCheck verifies that the bucket is accessible and listable
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: bucket not accessible", err)
	}

	_, err = s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.prefix),
		MaxKeys: aws.Int64(1),
	})
	if err != nil {
		return NewStorageError("S3 health check failed: cannot list objects", err)
	}
	return nil
}
