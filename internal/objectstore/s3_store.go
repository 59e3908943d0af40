package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
)

// r2Region is the region R2 expects from S3 clients.
const r2Region = "auto"

// Static errors.
var (
	ErrMissingEndpoint    = errors.New("S3 endpoint cannot be empty")
	ErrMissingBucket      = errors.New("bucket cannot be empty")
	ErrMissingCredentials = errors.New("access key id and secret access key are required")
)

// S3Client abstracts the S3 API operations used by S3Store.
// The *s3.Client type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2Credentials configure an S3 client for Cloudflare R2.
type R2Credentials struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewR2Client builds an S3 client against an R2 account endpoint.
func NewR2Client(ctx context.Context, creds R2Credentials) (*s3.Client, error) {
	if creds.Endpoint == "" {
		return nil, ErrMissingEndpoint
	}

	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, ErrMissingCredentials
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(r2Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 configuration: %w", err)
	}

	return s3.NewFromConfig(cfg, func(options *s3.Options) {
		options.BaseEndpoint = aws.String(creds.Endpoint)
		options.UsePathStyle = true
	}), nil
}

// S3Store stores objects in an S3-compatible bucket. URLs are built from a
// public base URL, since R2 buckets are not addressable by bucket name alone.
type S3Store struct {
	client        S3Client
	bucket        string
	publicBaseURL string
}

// NewS3Store creates a store for bucket. publicBaseURL may be empty, in
// which case URL returns s3:// URLs.
func NewS3Store(client S3Client, bucket, publicBaseURL string) (*S3Store, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}

	return &S3Store{client: client, bucket: bucket, publicBaseURL: publicBaseURL}, nil
}

// Download reads an object with GetObject.
func (s *S3Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, s.bucket)
		}

		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes an object with PutObject.
func (s *S3Store) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(audio.ContentTypeForKey(key)),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}

// URL returns the public URL of key.
func (s *S3Store) URL(key string) string {
	return publicURL(s.publicBaseURL, key, "s3://"+s.bucket+"/"+key)
}

// Name returns BackendR2.
func (s *S3Store) Name() string {
	return BackendR2
}

// WithBucket returns a store writing to another bucket on the same account.
// The public base URL belongs to the default bucket and is not carried over.
func (s *S3Store) WithBucket(bucket string) core.AudioStore {
	if bucket == "" || bucket == s.bucket {
		return s
	}

	return &S3Store{client: s.client, bucket: bucket}
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}

	return false
}
