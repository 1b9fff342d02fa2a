package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/JonnyWalker81/healthlytics/pkg/supabase"
)

// SupabasePutter stores objects through the Supabase Storage REST API.
type SupabasePutter struct {
	client *supabase.Client
}

// NewSupabasePutter creates a putter on the given client.
func NewSupabasePutter(client *supabase.Client) *SupabasePutter {
	return &SupabasePutter{client: client}
}

// Put implements ObjectPutter.
func (p *SupabasePutter) Put(ctx context.Context, bucket, key string, body io.Reader, _ int64, contentType string) error {
	return p.client.Upload(ctx, bucket, key, body, contentType)
}

// S3Config configures an S3-compatible endpoint (AWS, MinIO, Supabase's S3 gateway).
type S3Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// S3Putter stores objects with the AWS SDK.
type S3Putter struct {
	client *s3.Client
}

// NewS3Putter builds an S3 client. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain applies. A custom
// endpoint switches to path-style addressing.
func NewS3Putter(ctx context.Context, cfg S3Config) (*S3Putter, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Putter{client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// Put implements ObjectPutter.
func (p *S3Putter) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}
