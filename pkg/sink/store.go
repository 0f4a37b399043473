// Package sink persists normalized record groups as newline-delimited JSON
// blobs in object storage. Blob writes are whole-object overwrites, so
// writing the same key twice is idempotent.
package sink

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hublift/hublift/pkg/errors"
)

// ObjectStore abstracts blob storage. Put replaces the object at key in its
// entirety; there is no append.
type ObjectStore interface {
	Put(ctx context.Context, content []byte, bucket, key string) error
}

// S3Config configures the S3-backed ObjectStore.
type S3Config struct {
	Region         string
	Endpoint       string // non-empty overrides the resolved endpoint, for local stacks
	ForcePathStyle bool
	PartSizeBytes  int64
	Concurrency    int
}

// S3Store is the production ObjectStore backed by the AWS SDK upload manager.
type S3Store struct {
	uploader *manager.Uploader
}

// NewS3Store loads the ambient AWS credential chain and builds the uploader.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSizeBytes > 0 {
			u.PartSize = cfg.PartSizeBytes
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
	})

	return &S3Store{uploader: uploader}, nil
}

// Put uploads content to bucket/key, replacing any existing object.
func (s *S3Store) Put(ctx context.Context, content []byte, bucket, key string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to upload object").
			WithDetail("bucket", bucket).
			WithDetail("key", key)
	}
	return nil
}
