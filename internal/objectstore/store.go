package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/terracast/server/internal/config"
)

// ErrNotFound indicates the requested key holds no object
var ErrNotFound = errors.New("object not found")

// API is the subset of the S3 client the store uses. It exists so tests can
// substitute an in-memory implementation.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store wraps one S3 bucket with byte-level get/put/head/list operations.
type Store struct {
	bucket string
	client API
}

// Object is a streaming handle on a stored object.
type Object struct {
	Body          io.ReadCloser
	ETag          string
	ContentLength int64
	ContentType   string
}

// New builds a Store from configuration. An explicit endpoint switches the
// client to a local S3-compatible store (MinIO and friends).
func New(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{bucket: cfg.Bucket, client: client}, nil
}

// NewWithClient builds a Store over an existing client. Used by tests.
func NewWithClient(client API, bucket string) *Store {
	return &Store{bucket: bucket, client: client}
}

// Get reads the full object at key. Missing keys report ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %q from bucket %q: %w", key, s.bucket, err)
	}

	data, err := io.ReadAll(out.Body)
	if err != nil {
		_ = out.Body.Close()
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return data, out.Body.Close()
}

// Open returns a streaming handle for the object at key. The caller owns
// closing the body. Missing keys report ErrNotFound.
func (s *Store) Open(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to open object %q from bucket %q: %w", key, s.bucket, err)
	}

	obj := &Object{
		Body: out.Body,
		ETag: trimETag(aws.ToString(out.ETag)),
	}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if out.ContentType != nil {
		obj.ContentType = *out.ContentType
	}
	return obj, nil
}

// Put stores data under key and returns the server-reported integrity tag.
// cacheControl may be empty.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType, cacheControl string) (string, error) {
	put := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	}
	if cacheControl != "" {
		put.CacheControl = aws.String(cacheControl)
	}

	out, err := s.client.PutObject(ctx, put)
	if err != nil {
		return "", fmt.Errorf("failed to write object %q to bucket %q: %w", key, s.bucket, err)
	}
	return trimETag(aws.ToString(out.ETag)), nil
}

// Head checks existence and returns the object's integrity tag. Missing keys
// report ErrNotFound.
func (s *Store) Head(ctx context.Context, key string) (string, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to head object %q in bucket %q: %w", key, s.bucket, err)
	}
	return trimETag(aws.ToString(out.ETag)), nil
}

// List returns all keys under the prefix, following pagination. An absent
// prefix yields an empty slice.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var continuation *string

	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q in bucket %q: %w", prefix, s.bucket, err)
		}

		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}

	return keys, nil
}

// isNotFound matches the S3 error shapes for a missing object. GetObject
// reports *types.NoSuchKey; HeadObject reports *types.NotFound; some
// S3-compatible stores only set the API error code.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// trimETag strips the quotes S3 wraps around entity tags.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}
