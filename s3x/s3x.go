// Package s3x builds S3 clients for the archive and the log table source.
package s3x

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options selects where the client connects.
type Options struct {
	// Region is the AWS region. Empty uses the default chain.
	Region string
	// Endpoint overrides the S3 endpoint for compatible providers (MinIO, R2).
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Apply sets the endpoint overrides on o.
func (opts Options) Apply(o *s3.Options) {
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	o.UsePathStyle = opts.UsePathStyle
}

// NewClient loads credentials from the AWS default chain
// (env vars, shared config, IAM role) and returns a client.
func NewClient(ctx context.Context, opts Options) (*s3.Client, error) {
	var load []func(*config.LoadOptions) error
	if opts.Region != "" {
		load = append(load, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, load...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, opts.Apply), nil
}
