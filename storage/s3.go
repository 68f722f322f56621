package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store exposes one bucket through the Store contract. Credentials
// come from the process environment or IAM role, never from the URL.
type S3Store struct {
	client *s3.Client
	bucket string
}

// S3Option customizes S3 store construction
type S3Option func(*s3Options)

type s3Options struct {
	anonymous bool
	accessKey string
	secretKey string
}

// WithAnonymous builds a client with unsigned requests, for public
// buckets
func WithAnonymous() S3Option {
	return func(o *s3Options) {
		o.anonymous = true
	}
}

// WithStaticCredentials builds a client with explicit keys
func WithStaticCredentials(accessKey, secretKey string) S3Option {
	return func(o *s3Options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// NewS3Store creates a store for one bucket
func NewS3Store(ctx context.Context, bucket string, opts ...S3Option) (*S3Store, error) {
	var options s3Options
	for _, opt := range opts {
		opt(&options)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	switch {
	case options.anonymous:
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	case options.accessKey != "":
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.accessKey, options.secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Path-style keeps bucket addressing working against MinIO and
		// other S3-compatible endpoints
		o.UsePathStyle = true
	})

	return &S3Store{
		client: client,
		bucket: bucket,
	}, nil
}

// List returns up to limit keys under prefix using a single bounded
// ListObjectsV2 page
func (s *S3Store) List(ctx context.Context, prefix string, limit int) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	out, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}

// Get retrieves the object at key
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("getting s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}
