package storage

import (
	"alcyxob/fitness-share/internal/config" // Import your config package
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// s3Storage implements the BlobStore interface using an S3-compatible backend.
// Every key is stored under prefix inside the bucket.
type s3Storage struct {
	client     *s3.Client
	bucketName string
	prefix     string
	logger     *zap.Logger
}

// NewS3Storage creates a new S3 blob store instance.
func NewS3Storage(ctx context.Context, cfg config.S3Config, prefix string, logger *zap.Logger) (BlobStore, error) {
	// Load AWS configuration
	awsSDKConfig, err := awsCfg.LoadDefaultConfig(ctx,
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		logger.Error("failed to load AWS SDK config for S3", zap.Error(err))
		return nil, err
	}

	// Force path-style addressing required by most S3-compatible services (like MinIO)
	endpoint := endpointURL(cfg.Endpoint, cfg.UseSSL)
	s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	logger.Info("S3 blob storage initialized",
		zap.String("endpoint", endpoint),
		zap.String("bucket", cfg.BucketName),
		zap.String("prefix", prefix))

	return &s3Storage{
		client:     s3Client,
		bucketName: cfg.BucketName,
		prefix:     normalizePrefix(prefix),
		logger:     logger,
	}, nil
}

// endpointURL adds a scheme to a bare host:port endpoint, picked by useSSL.
// An endpoint that already names its scheme is used as is.
func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

func (s *s3Storage) objectKey(key string) string {
	return s.prefix + key
}

// isNotFound covers both the typed NoSuchKey/NotFound errors and HEAD responses,
// which carry no body and surface only as a generic "NotFound" API error code.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "PreconditionFailed"
}

func (s *s3Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *s3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Create uses a conditional write (If-None-Match: *) so S3 itself rejects a second writer.
func (s *s3Storage) Create(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return ErrObjectExists
		}
		s.logger.Error("failed to create object", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (s *s3Storage) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.logger.Error("failed to put object", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

// Delete checks existence first because S3 DeleteObject succeeds on missing keys.
func (s *s3Storage) Delete(ctx context.Context, key string) error {
	exists, err := s.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrObjectNotFound
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		s.logger.Error("failed to delete object", zap.String("key", key), zap.String("bucket", s.bucketName), zap.Error(err))
		return err
	}

	s.logger.Debug("deleted object", zap.String("key", key), zap.String("bucket", s.bucketName))
	return nil
}

func (s *s3Storage) List(ctx context.Context, suffix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			// Skip anything nested deeper than the prefix.
			if strings.Contains(name, "/") || !strings.HasSuffix(name, suffix) {
				continue
			}
			keys = append(keys, name)
		}
	}
	return keys, nil
}
