package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/ledgerdesk/backoffice/internal/config"
	ierr "github.com/ledgerdesk/backoffice/internal/errors"
	"github.com/ledgerdesk/backoffice/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *MockClient) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.GetObjectOutput)
	return out, args.Error(1)
}

func (m *MockClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.HeadObjectOutput)
	return out, args.Error(1)
}

func (m *MockClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func newTestService(client Client) *Service {
	svc := newService(client, nil, &config.S3Config{
		Enabled:   true,
		Region:    "eu-west-1",
		Bucket:    "artifacts",
		KeyPrefix: "backoffice/prod",
	}, logger.NewNopLogger())
	svc.backoff = func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), maxUploadRetries)
	}
	return svc
}

func keyIs(key string) interface{} {
	return mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Key) == key && aws.ToString(in.Bucket) == "artifacts"
	})
}

func TestUploadRetriesTransientFailures(t *testing.T) {
	client := new(MockClient)
	svc := newTestService(client)
	ctx := context.Background()

	client.On("PutObject", ctx, keyIs("backoffice/prod/PO0001_x_20260314.pdf")).
		Return(nil, errors.New("503 slow down")).Twice()
	client.On("PutObject", ctx, keyIs("backoffice/prod/PO0001_x_20260314.pdf")).
		Return(&s3.PutObjectOutput{}, nil).Once()

	require.NoError(t, svc.Upload(ctx, "PO0001_x_20260314.pdf", []byte("pdf")))
	client.AssertNumberOfCalls(t, "PutObject", 3)
}

func TestUploadGivesUp(t *testing.T) {
	client := new(MockClient)
	svc := newTestService(client)
	ctx := context.Background()

	client.On("PutObject", ctx, mock.Anything).Return(nil, errors.New("access denied"))

	err := svc.Upload(ctx, "PO0001_x_20260314.pdf", []byte("pdf"))
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrHTTPClient))
	client.AssertNumberOfCalls(t, "PutObject", maxUploadRetries+1)
}

func TestExists(t *testing.T) {
	client := new(MockClient)
	svc := newTestService(client)
	ctx := context.Background()

	client.On("HeadObject", ctx, mock.MatchedBy(func(in *s3.HeadObjectInput) bool {
		return aws.ToString(in.Key) == "backoffice/prod/a.pdf"
	})).Return(&s3.HeadObjectOutput{}, nil)
	client.On("HeadObject", ctx, mock.Anything).Return(nil, &types.NotFound{})

	ok, err := svc.Exists(ctx, "a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Exists(ctx, "b.pdf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAndDelete(t *testing.T) {
	client := new(MockClient)
	svc := newTestService(client)
	ctx := context.Background()

	client.On("GetObject", ctx, mock.Anything).
		Return(&s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte("%PDF")))}, nil)
	client.On("DeleteObject", ctx, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return aws.ToString(in.Key) == "backoffice/prod/a.pdf"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	data, err := svc.Get(ctx, "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data))
	require.NoError(t, svc.Delete(ctx, "a.pdf"))
}

func TestPresignWithoutClient(t *testing.T) {
	svc := newTestService(new(MockClient))
	_, err := svc.PresignedURL(context.Background(), "a.pdf")
	assert.True(t, ierr.Is(err, ierr.ErrInvalidOperation))
}

func TestNewServiceDisabled(t *testing.T) {
	svc, err := NewService(config.GetDefaultConfig(), logger.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, svc)
	assert.Nil(t, MirrorOrNil(svc))
}
