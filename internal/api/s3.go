package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"neural-garden/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Publisher struct {
	client *s3.Client
	bucket string
}

func NewS3Publisher(client *s3.Client, bucket string) *S3Publisher {
	return &S3Publisher{client: client, bucket: bucket}
}

// Publish writes the document under a content-addressed key, which doubles as the blob id.
func (p *S3Publisher) Publish(ctx context.Context, category string, data any) (string, error) {
	payload, err := json.Marshal(struct {
		Category string `json:"category"`
		Data     any    `json:"data"`
	}{category, data})
	if err != nil {
		return "", fmt.Errorf("failed to encode blob: %w", err)
	}

	sum := sha256.Sum256(payload)
	key := fmt.Sprintf("transcripts/%s/%s.json", category, hex.EncodeToString(sum[:]))

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", domain.ExternalService("failed to upload blob", errors.Is(err, context.DeadlineExceeded), err)
	}
	return key, nil
}
