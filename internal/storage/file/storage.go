package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aliskhannn/image-crawler/internal/config"
)

// ErrImageNotFound is returned when no thumbnail exists for an identifier.
var ErrImageNotFound = errors.New("image not found")

const contentType = "image/jpeg"

// objectStore is the subset of the MinIO client used by Storage.
type objectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Storage keeps thumbnails in an S3-compatible bucket using MinIO.
// Objects are keyed "{identifier}.jpg".
type Storage struct {
	client     objectStore
	bucketName string
}

// NewStorage connects to the configured MinIO server.
// If the bucket does not exist, it will be created automatically.
func NewStorage(ctx context.Context, cfg config.Storage) (*Storage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
	}, nil
}

// ObjectName returns the key a thumbnail is stored under.
func ObjectName(identifier string) string {
	return identifier + ".jpg"
}

// Persist uploads a thumbnail for identifier, replacing any previous one.
func (s *Storage) Persist(ctx context.Context, thumbnail []byte, identifier string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, ObjectName(identifier),
		bytes.NewReader(thumbnail), int64(len(thumbnail)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return fmt.Errorf("failed to save thumbnail %s: %w", identifier, err)
	}

	return nil
}

// Load returns a reader over the thumbnail stored for identifier and its size.
func (s *Storage) Load(ctx context.Context, identifier string) (io.ReadCloser, int64, error) {
	name := ObjectName(identifier)

	info, err := s.client.StatObject(ctx, s.bucketName, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, 0, ErrImageNotFound
		}
		return nil, 0, fmt.Errorf("failed to stat thumbnail %s: %w", identifier, err)
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load thumbnail %s: %w", identifier, err)
	}

	return obj, info.Size, nil
}
