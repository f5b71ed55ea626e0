package answerstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mcdev12/arena/go/internal/contesterr"
	"github.com/mcdev12/arena/go/internal/models"
)

// ObjectAPI is the subset of the S3 client used here.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Store struct {
	client ObjectAPI
	bucket string
	region string
}

// NewS3Store loads the default AWS config for region and returns a store on bucket.
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewS3StoreWithClient(s3.NewFromConfig(cfg), region, bucket), nil
}

func NewS3StoreWithClient(client ObjectAPI, region, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
	}
}

// Put uploads the part and returns the object URL.
func (s *S3Store) Put(ctx context.Context, key string, part models.AnswerPart) (string, error) {
	contentType := part.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(part.Data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", contesterr.Unavailable("upload answer file", err)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return contesterr.Unavailable("delete answer file", err)
	}
	return nil
}
