package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ErrInvalidURL is returned for references that are not s3://bucket/key.
var ErrInvalidURL = errors.New("invalid s3 url")

// Options configures the S3 client. Empty keys fall back to the default
// credential chain; Endpoint targets S3-compatible stores such as MinIO.
type Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Client moves source documents and build outputs in and out of S3.
type S3Client struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
}

// NewS3Client creates a new S3 client
func NewS3Client(ctx context.Context, opts Options) (*S3Client, error) {
	var loadOpts []func(*awscfg.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awscfg.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Client{
		client:     cli,
		uploader:   manager.NewUploader(cli),
		downloader: manager.NewDownloader(cli),
	}, nil
}

// Download writes s3://bucket/key into w and returns the byte count.
func (s *S3Client) Download(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	n, err := s.downloader.Download(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("size", n).Msg("downloaded object from S3")
	return n, nil
}

// Upload stores body at s3://bucket/key using multipart upload for large bodies.
func (s *S3Client) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string, metadata map[string]string) (string, error) {
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("location", out.Location).Msg("uploaded object to S3")
	return out.Location, nil
}

// HeadBucket checks the bucket exists and is reachable with the current credentials.
func (s *S3Client) HeadBucket(ctx context.Context, bucket string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}

// ParseURL splits s3://bucket/key. A #fragment is ignored.
func ParseURL(ref string) (bucket, key string, err error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if !strings.HasPrefix(ref, "s3://") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, ref)
	}
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURL, ref)
	}
	return path[:slash], path[slash+1:], nil
}
