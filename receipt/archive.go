package receipt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	appConfig "cinema_pos/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Archive stores rendered receipts and hands out presigned links to them.
type S3Archive struct {
	client  ObjectPutter
	presign Presigner
	bucket  string
	expires time.Duration
}

// NewS3Archive returns nil when no bucket is configured.
func NewS3Archive(ctx context.Context, cfg appConfig.S3) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig)
	return NewS3ArchiveWithClient(client, s3.NewPresignClient(client), cfg.Bucket), nil
}

func NewS3ArchiveWithClient(client ObjectPutter, presign Presigner, bucket string) *S3Archive {
	return &S3Archive{client: client, presign: presign, bucket: bucket, expires: time.Hour}
}

// Key is receipts/{theaterId}/{YYYY-MM-DD}/{orderNumber}.html, dated in UTC.
func Key(b Bill) string {
	return fmt.Sprintf("receipts/%d/%s/%s.html", b.TheaterId, b.IssuedAt.UTC().Format("2006-01-02"), b.OrderNumber)
}

func (a *S3Archive) Put(ctx context.Context, b Bill, html []byte) (string, error) {
	key := Key(b)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(html),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload receipt to S3: %w", err)
	}
	return key, nil
}

func (a *S3Archive) URL(ctx context.Context, key string) (string, error) {
	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = a.expires
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return req.URL, nil
}
