package storage

import (
	"context"
	"fmt"
	"io"

	appconfig "aidimport/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// FileService archives batch reports to durable object storage
type FileService interface {
	// ArchiveReport uploads a report under the given key and returns its URL
	ArchiveReport(ctx context.Context, key string, body io.Reader) (string, error)

	// TestConnection verifies bucket access
	TestConnection(ctx context.Context) error
}

type fileService struct {
	s3     *s3.Client
	bucket string
	region string
}

// NewFileService creates an S3-backed file service
func NewFileService(cfg appconfig.AWSConfig) (FileService, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	return &fileService{
		s3:     client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

func (s *fileService) ArchiveReport(ctx context.Context, key string, body io.Reader) (string, error) {
	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to archive report")
		return "", err
	}

	reportURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)

	log.Debug().Str("key", key).Str("url", reportURL).Msg("Archived report")
	return reportURL, nil
}

func (s *fileService) TestConnection(ctx context.Context) error {
	// List a single object to verify credentials and bucket access
	_, err := s.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Msg("S3 connection test failed")
	}

	return err
}
