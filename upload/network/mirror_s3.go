package network

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
)

const numMirrorRetries = 3

// S3MirrorParams ...
type S3MirrorParams struct {
	FilePath        string
	FileID          string
	ContentType     string
	FileSize        int64
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

type s3MirrorService struct {
	client      *s3.Client
	bucket      string
	filePath    string
	contentType string
	fileSize    int64
}

// MirrorToS3 copies a finalized media file into an S3 bucket under its
// content-derived ID. Objects are content-addressed, so an existing key
// means the file is already mirrored and the upload is skipped.
func MirrorToS3(ctx context.Context, params S3MirrorParams, logger log.Logger) error {
	if params.Bucket == "" {
		return fmt.Errorf("Bucket must not be empty")
	}

	if params.FilePath == "" {
		return fmt.Errorf("FilePath must not be empty")
	}

	if params.FileID == "" {
		return fmt.Errorf("FileID must not be empty")
	}

	cfg, err := loadAWSCredentials(
		ctx,
		params.Region,
		params.AccessKeyID,
		params.SecretAccessKey,
		logger,
	)
	if err != nil {
		return fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg)
	service := &s3MirrorService{
		client:      client,
		bucket:      params.Bucket,
		filePath:    params.FilePath,
		contentType: params.ContentType,
		fileSize:    params.FileSize,
	}

	return service.mirror(ctx, params.FileID, logger)
}

func (service *s3MirrorService) mirror(ctx context.Context, fileID string, logger log.Logger) error {
	exists, err := service.keyExistsWithRetry(ctx, fileID)
	if err != nil {
		return fmt.Errorf("validate object: %w", err)
	}

	if exists {
		logger.Debugf("Object %s is already mirrored, skipping upload", fileID)
		return nil
	}

	logger.Debugf("Mirroring file to s3://%s/%s", service.bucket, fileID)
	err = service.putObjectWithRetry(ctx, fileID)
	if err != nil {
		return fmt.Errorf("upload object: %w", err)
	}

	return nil
}

func (service *s3MirrorService) keyExistsWithRetry(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := retry.Times(numMirrorRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		_, err := service.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(service.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var apiError smithy.APIError
			if errors.As(err, &apiError) {
				switch apiError.(type) {
				case *types.NotFound:
					exists = false
					return nil, true
				default:
					return fmt.Errorf("validating object: %w", err), false
				}
			}
			return fmt.Errorf("generic aws error: %w", err), false
		}

		exists = true
		return nil, true
	})

	return exists, err
}

func (service *s3MirrorService) putObjectWithRetry(ctx context.Context, key string) error {
	return retry.Times(numMirrorRetries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		file, err := os.Open(service.filePath)
		if err != nil {
			return fmt.Errorf("open file path: %w", err), true
		}
		defer file.Close() //nolint:errcheck

		var partMB int64 = 10
		uploader := manager.NewUploader(service.client, func(u *manager.Uploader) {
			u.PartSize = partMB * 1024 * 1024
		})

		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Body:          file,
			Bucket:        aws.String(service.bucket),
			Key:           aws.String(key),
			ContentType:   aws.String(service.contentType),
			ContentLength: aws.Int64(service.fileSize),
		})
		if err != nil {
			return fmt.Errorf("upload object: %w", err), false
		}

		return nil, true
	})
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
