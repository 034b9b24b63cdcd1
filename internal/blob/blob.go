// Package blob wraps the MinIO client used for submission artifacts, test
// result archives, and example payloads (spec.md §6 "Persisted state").
package blob

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/computor-platform/computor-api/internal/config"
)

const (
	// BucketResults holds test artifacts keyed by "result_id/artifacts/...".
	BucketResults = "results"
	// BucketExamples holds example version payloads, consumed opaquely by
	// the deployment release workflow.
	BucketExamples = "examples"
)

// SubmissionGroupBucket names the per-group bucket from spec.md §6.
func SubmissionGroupBucket(submissionGroupID string) string {
	return "sg-" + submissionGroupID
}

type Store struct {
	client *minio.Client
}

func New(cfg config.Blob) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{client: client}, nil
}

// EnsureBucket creates bucket if it does not already exist.
func (s *Store) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", bucket, err)
	}
	return nil
}

// Put uploads body to bucket/objectKey and returns the number of bytes
// written.
func (s *Store) Put(ctx context.Context, bucket, objectKey string, body io.Reader, size int64, contentType string) (int64, error) {
	if err := s.EnsureBucket(ctx, bucket); err != nil {
		return 0, err
	}

	info, err := s.client.PutObject(ctx, bucket, objectKey, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, fmt.Errorf("put object %s/%s: %w", bucket, objectKey, err)
	}
	return info.Size, nil
}

// Get opens a reader for bucket/objectKey. Caller must close it.
func (s *Store) Get(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, objectKey, err)
	}
	return obj, nil
}

// Delete removes bucket/objectKey.
func (s *Store) Delete(ctx context.Context, bucket, objectKey string) error {
	if err := s.client.RemoveObject(ctx, bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %s/%s: %w", bucket, objectKey, err)
	}
	return nil
}
