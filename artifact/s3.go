package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

const defaultPresignExpiry = 15 * time.Minute

// S3Sink uploads artifacts to an S3 bucket and hands out presigned GET URLs.
type S3Sink struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	expiry        time.Duration
}

// NewS3Sink creates an S3 sink using the SDK's default credential chain.
func NewS3Sink(ctx context.Context, bucket, region string, expiry time.Duration) (*S3Sink, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name cannot be empty")
	}
	if region == "" {
		return nil, fmt.Errorf("S3 region cannot be empty")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newS3Sink(s3.NewFromConfig(cfg), bucket, expiry), nil
}

func newS3Sink(client *s3.Client, bucket string, expiry time.Duration) *S3Sink {
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &S3Sink{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		expiry:        expiry,
	}
}

// Save uploads data under name and returns a presigned URL for it.
func (s *S3Sink) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key, err := cleanName(name)
	if err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		if isBucketNotFound(err) {
			return "", fmt.Errorf("%w: %s", ErrBucketNotFound, s.bucket)
		}
		return "", fmt.Errorf("failed to upload artifact to S3: %w", err)
	}

	presigned, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.expiry
	})
	if err != nil {
		return "", fmt.Errorf("failed to presign artifact URL: %w", err)
	}

	return presigned.URL, nil
}

func isBucketNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchBucket"
	}
	return false
}
