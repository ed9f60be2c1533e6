package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/justapithecus/mk0link/s3x"
)

// S3Config locates the archive in a bucket.
type S3Config struct {
	Bucket string // required
	Prefix string
	s3x.Options
}

// ParseS3Path splits "bucket/prefix" into its parts.
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// NewS3Factory builds a Lode store factory over a single shared S3 client.
func NewS3Factory(ctx context.Context, cfg S3Config) (lode.StoreFactory, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive: S3 bucket is required")
	}
	client, err := s3x.NewClient(ctx, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
	}, nil
}

// NewS3 creates an archive writing to S3.
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config, opts Options) (*Archive, error) {
	factory, err := NewS3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, factory, opts)
}
