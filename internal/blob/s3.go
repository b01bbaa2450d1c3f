package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures an S3-compatible bucket. Endpoint is empty for AWS.
type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	// PublicBaseURL is prefixed to object keys in returned URLs, e.g. a CDN.
	PublicBaseURL string
}

// S3 uploads images with PutObject.
type S3 struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3 builds the S3 client. Static credentials are used when an access
// key is configured; otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("blob: region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: PublicURLBase(cfg),
	}, nil
}

func (s *S3) PutImage(ctx context.Context, marketID int64, data io.Reader, contentType string) (string, error) {
	key, err := ObjectKey(marketID, contentType)
	if err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("blob: put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Health checks that the bucket is reachable.
func (s *S3) Health(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("blob: head bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PublicURLBase is the URL prefix objects are served from.
func PublicURLBase(cfg S3Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	if cfg.Endpoint != "" {
		ep := strings.TrimRight(cfg.Endpoint, "/")
		if cfg.ForcePathStyle {
			return ep + "/" + cfg.Bucket
		}
		if u, err := url.Parse(ep); err == nil && u.Host != "" {
			u.Host = cfg.Bucket + "." + u.Host
			return u.String()
		}
		return ep + "/" + cfg.Bucket
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
}
