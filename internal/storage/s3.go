package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config describes one S3-compatible provider endpoint.
type S3Config struct {
	Provider  Provider
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string

	// PresignTTL bounds how long minted URLs stay valid.
	PresignTTL time.Duration
	// RequestTimeout bounds each network call; a timeout surfaces as a
	// retryable StorageError.
	RequestTimeout time.Duration
}

// S3Backend implements Backend against an S3-compatible endpoint. Data moves
// through presigned URLs: the backend mints a time-boxed URL and transfers
// the bytes over plain HTTP, so object credentials never travel with the
// payload path.
type S3Backend struct {
	cfg     S3Config
	client  *s3.Client
	presign *s3.PresignClient
	http    *http.Client
}

func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.PresignTTL == 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Backend{
		cfg:     cfg,
		client:  client,
		presign: s3.NewPresignClient(client),
		http:    &http.Client{},
	}, nil
}

// objectKey mints a date-bucketed random key for a new object.
func objectKey() string {
	d := time.Now().UTC()
	return fmt.Sprintf("objects/%d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (b *S3Backend) Upload(ctx context.Context, body []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	key := objectKey()
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &key,
	}, s3.WithPresignExpires(b.cfg.PresignTTL))
	if err != nil {
		return "", normalizeErr(b.cfg.Provider, err, true)
	}

	if err := b.putPresignedURL(ctx, req.URL, body); err != nil {
		return "", err
	}
	return key, nil
}

func (b *S3Backend) Download(ctx context.Context, pointer string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &pointer,
	}, s3.WithPresignExpires(b.cfg.PresignTTL))
	if err != nil {
		return nil, normalizeErr(b.cfg.Provider, err, true)
	}

	return b.getPresignedURL(ctx, req.URL)
}

func (b *S3Backend) Delete(ctx context.Context, pointer string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &b.cfg.Bucket,
		Key:    &pointer,
	})
	return normalizeErr(b.cfg.Provider, err, true)
}

// putPresignedURL PUTs body to a presigned URL. A 2xx response means the
// object is durably stored.
func (b *S3Backend) putPresignedURL(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return normalizeErr(b.cfg.Provider, err, false)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.http.Do(req)
	if err != nil {
		return normalizeErr(b.cfg.Provider, err, true)
	}
	defer resp.Body.Close()

	return normalizeStatus(b.cfg.Provider, resp.StatusCode, "upload")
}

func (b *S3Backend) getPresignedURL(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, normalizeErr(b.cfg.Provider, err, false)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, normalizeErr(b.cfg.Provider, err, true)
	}
	defer resp.Body.Close()

	if err := normalizeStatus(b.cfg.Provider, resp.StatusCode, "download"); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}
