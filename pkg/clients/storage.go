package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	bucketCreateRetries = 3
	bucketCreateDelay   = 500 * time.Millisecond

	PresignDownloadExpiry = 15 * time.Minute

	documentContentType = "text/plain; charset=utf-8"
)

// DocumentArchive keeps a copy of every imported document in one S3 bucket.
type DocumentArchive struct {
	s3       *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
	bucket   string
}

func NewDocumentArchive(ctx context.Context, cfg types.S3Config) (*DocumentArchive, error) {
	if !cfg.IsConfigured() {
		return nil, errors.New("storage: s3 bucket not configured")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(3),
		config.WithRetryMode(aws.RetryModeStandard),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle || cfg.Endpoint != ""
	})

	log.Info().
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Str("bucket", cfg.Bucket).
		Msg("document archive initialized")

	return &DocumentArchive{
		s3:       s3Client,
		uploader: manager.NewUploader(s3Client),
		presign:  s3.NewPresignClient(s3Client),
		bucket:   cfg.Bucket,
	}, nil
}

func (a *DocumentArchive) Bucket() string { return a.bucket }

// EnsureBucket creates the archive bucket if it doesn't exist yet.
func (a *DocumentArchive) EnsureBucket(ctx context.Context) error {
	var lastErr error
	for i := 0; i < bucketCreateRetries; i++ {
		_, err := a.s3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
		if err == nil {
			log.Info().Str("bucket", a.bucket).Msg("created S3 bucket")
			return nil
		}

		var exists *s3types.BucketAlreadyExists
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &exists) || errors.As(err, &owned) {
			return nil
		}

		lastErr = err
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bucketCreateDelay):
		}
	}
	return fmt.Errorf("create bucket %s: %w", a.bucket, lastErr)
}

// Object operations

func (a *DocumentArchive) Upload(ctx context.Context, key string, content []byte) error {
	_, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(documentContentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (a *DocumentArchive) Download(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (a *DocumentArchive) Delete(ctx context.Context, key string) error {
	_, err := a.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	return err
}

// PresignDownload returns a time-limited GET URL for an archived document.
func (a *DocumentArchive) PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = PresignDownloadExpiry
	}
	resp, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return resp.URL, nil
}
