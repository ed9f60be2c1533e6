package logtable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/justapithecus/mk0link/s3x"
)

// DefaultPath is the artifact read when no location is configured.
const DefaultPath = "log_table.json"

// Source fetches the raw artifact bytes.
type Source interface {
	// Fetch returns the artifact, or an error wrapping ErrNotFound when it
	// does not exist.
	Fetch(ctx context.Context) ([]byte, error)
	// String names the source in log messages.
	String() string
}

// FileSource reads the artifact from the local filesystem.
type FileSource struct {
	Path string
}

// Fetch reads the file.
func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read log table: %w", err)
	}
	return data, nil
}

func (s FileSource) String() string {
	return s.Path
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates the artifact in a bucket.
type S3Config struct {
	Bucket string // required
	Key    string // required
	s3x.Options
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	if c.Key == "" {
		return errors.New("S3 key is required")
	}
	return nil
}

// S3Source reads the artifact from an S3 object.
type S3Source struct {
	client S3API
	bucket string
	key    string
}

// NewS3Source creates a source backed by client.
func NewS3Source(client S3API, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// NewS3SourceFromConfig builds a client with s3x.NewClient and wraps it.
func NewS3SourceFromConfig(ctx context.Context, cfg S3Config) (*S3Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := s3x.NewClient(ctx, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("log table: %w", err)
	}
	return NewS3Source(client, cfg.Bucket, cfg.Key), nil
}

// Fetch downloads the object.
func (s *S3Source) Fetch(ctx context.Context) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s)
		}
		return nil, fmt.Errorf("failed to get log table from %s: %w", s, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read log table from %s: %w", s, err)
	}
	return data, nil
}

func (s *S3Source) String() string {
	return "s3://" + s.bucket + "/" + s.key
}
