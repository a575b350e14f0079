package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lemur-data/lemur-engine/pkg/config"
)

// s3API is the subset of *s3.Client used by the archive.
type s3API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketVersioning(ctx context.Context, in *s3.PutBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.PutBucketVersioningOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Archive stores raw uploads in an S3 bucket or a MinIO endpoint.
type S3Archive struct {
	client s3API
	bucket string
	region string
	logger *zap.Logger
}

var _ Archive = (*S3Archive)(nil)

// NewS3Archive builds an S3 client from cfg and makes sure the bucket exists with
// versioning enabled. A custom endpoint switches to path-style addressing for MinIO.
func NewS3Archive(ctx context.Context, cfg *config.ArchiveConfig, logger *zap.Logger) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	endpoint := config.ResolveEndpointForDocker(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	archive := newS3Archive(client, cfg.Bucket, cfg.Region, logger)
	if err := archive.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

func newS3Archive(client s3API, bucket, region string, logger *zap.Logger) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		region: region,
		logger: logger.Named("archive"),
	}
}

// ensureBucket creates the bucket when it is missing and turns on versioning.
func (a *S3Archive) ensureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket %s: %w", a.bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}
	// us-east-1 is the default location and must not be sent as a constraint.
	if a.region != "" && a.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(a.region),
		}
	}
	if _, err := a.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", a.bucket, err)
	}

	_, err = a.client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(a.bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to enable versioning on bucket %s: %w", a.bucket, err)
	}

	a.logger.Info("Created archive bucket", zap.String("bucket", a.bucket))
	return nil
}

func (a *S3Archive) Put(ctx context.Context, projectID uuid.UUID, datasetID, fileName string, body []byte) (string, error) {
	key := ObjectKey(projectID, datasetID, fileName)

	contentType := contentTypeFor(key)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
		Metadata: map[string]string{
			"project-id": projectID.String(),
			"dataset-id": datasetID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.logger.Debug("Archived upload",
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return key, nil
}

func (a *S3Archive) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// contentTypeFor guesses the MIME type from the extension. CSV is not in Go's builtin table.
func contentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == ".csv" {
		return "text/csv"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
