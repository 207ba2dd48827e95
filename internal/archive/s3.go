// Package archive writes export snapshots to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNotConfigured is returned when archiving is requested without a sink.
var ErrNotConfigured = errors.New("export archive not configured")

// Object describes a stored archive.
type Object struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Sink stores export archives.
type Sink interface {
	Put(ctx context.Context, projectID, ext, contentType string, body []byte) (*Object, error)
	HealthCheck(ctx context.Context) error
}

// Config holds S3 connection settings.
type Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Region          string
	// URLExpiryMinutes sets the lifetime of download links. Default: 60.
	URLExpiryMinutes int
}

// S3Sink stores archives in an S3 bucket and hands out presigned GET URLs.
type S3Sink struct {
	client    *s3.Client
	presign   *s3.PresignClient
	bucket    string
	urlExpiry time.Duration
	timeNow   func() time.Time
}

// NewS3Sink creates a sink from the given configuration.
func NewS3Sink(cfg Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, errors.New("access key ID and secret access key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.URLExpiryMinutes <= 0 {
		cfg.URLExpiryMinutes = 60
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	client := s3.New(opts)

	return &S3Sink{
		client:    client,
		presign:   s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		urlExpiry: time.Duration(cfg.URLExpiryMinutes) * time.Minute,
		timeNow:   time.Now,
	}, nil
}

// ObjectKey builds exports/{project}/{yyyymmddThhmmssZ}-{uuid}{ext}.
func ObjectKey(projectID, ext string, now time.Time) string {
	return fmt.Sprintf("exports/%s/%s-%s%s",
		sanitizePathComponent(projectID),
		now.UTC().Format("20060102T150405Z"),
		uuid.New().String(),
		ext,
	)
}

// Put uploads body and returns its key and a presigned download URL.
func (s *S3Sink) Put(ctx context.Context, projectID, ext, contentType string, body []byte) (*Object, error) {
	now := s.timeNow()
	key := ObjectKey(projectID, ext, now)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) {
		o.Expires = s.urlExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("failed to presign archive URL: %w", err)
	}

	return &Object{
		Key:         key,
		URL:         req.URL,
		ContentType: contentType,
		SizeBytes:   int64(len(body)),
		ExpiresAt:   now.Add(s.urlExpiry),
	}, nil
}

// HealthCheck verifies the bucket is reachable.
func (s *S3Sink) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket unreachable: %w", err)
	}
	return nil
}

// sanitizePathComponent keeps only alphanumerics, hyphens and underscores.
func sanitizePathComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
