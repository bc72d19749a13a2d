package s3

import (
	"bytes"
	"context"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/ledgerdesk/backoffice/internal/artifact"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
)

const (
	defaultPresignExpiryDuration = 30 * time.Minute
	maxUploadRetries             = 3
	contentTypePDF               = "application/pdf"
)

// Client is the subset of the S3 API the mirror uses
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Service mirrors artifacts to an S3 bucket
type Service struct {
	client    Client
	presigner *s3.PresignClient
	config    *config.S3Config
	logger    *logger.Logger
	backoff   func() backoff.BackOff
}

var _ artifact.Mirror = (*Service)(nil)

// NewService returns nil when the mirror is disabled
func NewService(cfg *config.Configuration, log *logger.Logger) (*Service, error) {
	if !cfg.S3.Enabled {
		return nil, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(cfg.S3.Region),
	)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to load aws config").
			Mark(ierr.ErrHTTPClient)
	}

	client := s3.NewFromConfig(awsCfg)
	return newService(client, s3.NewPresignClient(client), &cfg.S3, log), nil
}

func newService(client Client, presigner *s3.PresignClient, cfg *config.S3Config, log *logger.Logger) *Service {
	return &Service{
		client:    client,
		presigner: presigner,
		config:    cfg,
		logger:    log,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(b, maxUploadRetries)
		},
	}
}

// MirrorOrNil adapts a possibly nil service to the artifact.Mirror interface
// so a disabled mirror is a nil interface rather than a typed nil.
func MirrorOrNil(s *Service) artifact.Mirror {
	if s == nil {
		return nil
	}
	return s
}

func (s *Service) objectKey(name string) string {
	if s.config.KeyPrefix != "" {
		return path.Join(s.config.KeyPrefix, name)
	}
	return name
}

// Upload stores the artifact, retrying transient failures with exponential backoff
func (s *Service) Upload(ctx context.Context, name string, data []byte) error {
	key := s.objectKey(name)
	attempt := 0
	op := func() error {
		attempt++
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentTypePDF),
		})
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		if err != nil {
			s.logger.Warnw("artifact upload attempt failed", "key", key, "attempt", attempt, "error", err)
		}
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(s.backoff(), ctx)); err != nil {
		return ierr.WithError(err).WithHint("failed to upload artifact").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}

// Exists reports whether the artifact is present in the bucket
func (s *Service) Exists(ctx context.Context, name string) (bool, error) {
	key := s.objectKey(name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var nf *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nf) {
			return false, nil
		}
		return false, ierr.WithError(err).
			WithHint("failed to check if artifact exists").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	return true, nil
}

// Get downloads the artifact
func (s *Service) Get(ctx context.Context, name string) ([]byte, error) {
	key := s.objectKey(name)
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to get artifact").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// Delete removes the artifact from the bucket
func (s *Service) Delete(ctx context.Context, name string) error {
	key := s.objectKey(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ierr.WithError(err).WithHint("failed to delete artifact").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	return nil
}

// PresignedURL returns a time limited download URL
func (s *Service) PresignedURL(ctx context.Context, name string) (string, error) {
	if s.presigner == nil {
		return "", ierr.NewError("presigning is not configured").
			WithHint("Download links are not available").
			Mark(ierr.ErrInvalidOperation)
	}
	key := s.objectKey(name)

	duration, err := time.ParseDuration(s.config.PresignExpiryDuration)
	if err != nil {
		duration = defaultPresignExpiryDuration
	}

	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(duration))
	if err != nil {
		return "", ierr.WithError(err).WithHint("failed to get presigned url").
			WithMessagef("bucket:%s, key:%s", s.config.Bucket, key).
			Mark(ierr.ErrHTTPClient)
	}
	return result.URL, nil
}
