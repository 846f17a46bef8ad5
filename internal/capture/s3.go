package capture

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of *s3.Client used by S3Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store stores quarantined datagrams in an S3 bucket.
//
// Example usage:
//
//	client := capture.NewS3Client("eu-west-1", "")
//	store := capture.NewS3Store(client, "my-bucket", "quarantine/")
type S3Store struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Store creates a store writing objects named prefix+key+Extension.
func NewS3Store(client PutObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Name implements Store.
func (s *S3Store) Name() string { return "s3" }

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(s.prefix + key + Extension),
		Body:            bytes.NewReader(Encode(data)),
		ContentType:     aws.String("application/octet-stream"),
		ContentEncoding: aws.String("snappy"),
		Metadata: map[string]string{
			"original-size": strconv.Itoa(len(data)),
			"capture-time":  time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("capture: s3 put %s: %w", key, err)
	}
	return nil
}

// NewS3Client builds an S3 client for region, reading static credentials
// from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN. A
// non-empty endpoint selects an S3-compatible service with path-style
// addressing.
func NewS3Client(region, endpoint string) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("capture: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})

	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}
