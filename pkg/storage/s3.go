package storage

import (
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
	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/pkg/config"
)

// s3API is the subset of the S3 client the photo store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Storage keeps photos in an S3 compatible bucket.
type S3Storage struct {
	client s3API
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Storage builds a store from configuration. A custom endpoint switches to path-style addressing.
func NewS3Storage(ctx context.Context, cfg config.PhotoStorageConfig, logger *zap.Logger) (*S3Storage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("photo s3 bucket required")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Storage(client, cfg.S3Bucket, cfg.S3Prefix, logger), nil
}

func newS3Storage(client s3API, bucket, prefix string, logger *zap.Logger) *S3Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Storage{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Name identifies the driver in logs.
func (s *S3Storage) Name() string {
	return "s3"
}

// Save uploads the photo under key.
func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader) error {
	objectKey := s.objectKey(key)
	s.logger.Debug("s3 put", zap.String("bucket", s.bucket), zap.String("key", objectKey))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objectKey, err)
	}
	return nil
}

// Open streams the photo stored under key.
func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey := s.objectKey(key)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("s3 get %s: %w", objectKey, err)
	}
	return resp.Body, nil
}

// Delete removes the object for key. S3 treats missing keys as success.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	objectKey := s.objectKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objectKey, err)
	}
	return nil
}

func (s *S3Storage) objectKey(key string) string {
	key = strings.TrimLeft(key, "/")
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// NewPhotoStore selects the configured photo driver.
func NewPhotoStore(ctx context.Context, cfg config.PhotoStorageConfig, logger *zap.Logger) (PhotoStore, error) {
	switch cfg.Driver {
	case config.PhotoDriverS3:
		return NewS3Storage(ctx, cfg, logger)
	case "", config.PhotoDriverLocal:
		return NewLocalStorage(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown photo storage driver %q", cfg.Driver)
	}
}
