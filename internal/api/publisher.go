package api

import (
	"context"
	"fmt"

	"neural-garden/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

type BlobPublisher interface {
	Publish(ctx context.Context, category string, data any) (string, error)
}

// ProvideBlobPublisher selects the archive backend from configuration.
func ProvideBlobPublisher(cfg *config.Config, logger zerolog.Logger) (BlobPublisher, error) {
	if cfg.BlobBackend != "s3" {
		logger.Info().Str("publisher_url", cfg.PublisherURL).Msg("using walrus blob publisher")
		return NewWalrusPublisher(cfg.PublisherURL), nil
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	logger.Info().Str("bucket", cfg.S3Bucket).Str("endpoint", cfg.S3Endpoint).Msg("using s3 blob publisher")
	return NewS3Publisher(client, cfg.S3Bucket), nil
}
