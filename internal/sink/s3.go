package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/local/docsplit/internal/engine"
)

// Uploader is the storage capability the S3 sink needs.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) (string, error)
	HeadBucket(ctx context.Context, bucket string) error
}

// S3 uploads the output as one object. S3 makes the object visible only once
// the upload completes, so a failed build never leaves a partial object.
type S3 struct {
	Uploader Uploader
	Bucket   string
	Key      string
	Metadata map[string]string
}

func (s *S3) Validate(ctx context.Context) error {
	if err := s.Uploader.HeadBucket(ctx, s.Bucket); err != nil {
		return fmt.Errorf("%w: bucket %s: %v", engine.ErrDestinationUnwritable, s.Bucket, err)
	}
	return nil
}

func (s *S3) Commit(ctx context.Context, staged string) (string, error) {
	f, err := os.Open(staged)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := s.Uploader.Upload(ctx, s.Bucket, s.Key, f, "application/pdf", s.Metadata); err != nil {
		return "", err
	}
	return "s3://" + s.Bucket + "/" + s.Key, nil
}
