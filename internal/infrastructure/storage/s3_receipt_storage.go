// Package storage provides object storage implementations for receipt files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	infraconfig "github.com/cuotas/backend/internal/infrastructure/config"
)

// Ensure S3ReceiptStorage implements ReceiptStorage
var _ appbilling.ReceiptStorage = (*S3ReceiptStorage)(nil)

// S3ReceiptStorage stores uploaded payment receipts using the AWS S3 SDK v2.
// It is compatible with any S3-compatible storage (AWS S3, MinIO, localstack).
type S3ReceiptStorage struct {
	client    *s3.Client
	bucket    string
	publicURL string
	logger    *zap.Logger
}

// S3ReceiptStorageOption is a functional option for configuring S3ReceiptStorage
type S3ReceiptStorageOption func(*S3ReceiptStorage)

// WithLogger sets a custom logger for S3ReceiptStorage
func WithLogger(logger *zap.Logger) S3ReceiptStorageOption {
	return func(s *S3ReceiptStorage) {
		s.logger = logger
	}
}

// NewS3ReceiptStorage creates a new S3ReceiptStorage from configuration
func NewS3ReceiptStorage(cfg *infraconfig.StorageConfig, opts ...S3ReceiptStorageOption) (*S3ReceiptStorage, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
				endpoint = "https://" + endpoint
			}
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	storage := &S3ReceiptStorage{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		logger:    zap.NewNop(),
	}

	for _, opt := range opts {
		opt(storage)
	}

	return storage, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
// Call this during application startup to ensure the bucket is ready.
func (s *S3ReceiptStorage) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating receipt bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		// Another instance may have created it first
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

// Store uploads a receipt file and returns its public URL. Receipts are keyed
// under the student's ID so all files of one student live under one prefix.
func (s *S3ReceiptStorage) Store(ctx context.Context, studentID uuid.UUID, filename string, content io.Reader, size int64, contentType string) (string, error) {
	if studentID == uuid.Nil {
		return "", errors.New("student ID is required")
	}

	key := receiptKey(studentID, filename, time.Now())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          content,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt: %w", err)
	}

	return s.urlFor(key), nil
}

// Remove deletes a stored receipt by its public URL. Used to clean up when
// record insertion fails after the file was already uploaded.
func (s *S3ReceiptStorage) Remove(ctx context.Context, receiptURL string) error {
	key, err := s.keyFromURL(receiptURL)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete receipt: %w", err)
	}

	return nil
}

// GetBucket returns the bucket name
func (s *S3ReceiptStorage) GetBucket() string {
	return s.bucket
}

func (s *S3ReceiptStorage) urlFor(key string) string {
	if s.publicURL != "" {
		return s.publicURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
}

func (s *S3ReceiptStorage) keyFromURL(receiptURL string) (string, error) {
	if s.publicURL != "" && strings.HasPrefix(receiptURL, s.publicURL+"/") {
		return strings.TrimPrefix(receiptURL, s.publicURL+"/"), nil
	}
	parsed, err := url.Parse(receiptURL)
	if err != nil {
		return "", fmt.Errorf("invalid receipt URL: %w", err)
	}
	key := strings.TrimPrefix(parsed.Path, "/")
	if key == "" {
		return "", errors.New("receipt URL has no object key")
	}
	return key, nil
}

// receiptKey builds the object key "{studentID}/{studentID}-{unixMillis}{ext}".
// The timestamp keeps repeated uploads from overwriting each other.
func receiptKey(studentID uuid.UUID, filename string, at time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s-%d%s", studentID, studentID, at.UnixMilli(), ext)
}
