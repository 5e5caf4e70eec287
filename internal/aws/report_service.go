package aws

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// ReportService uploads batch result reports to object storage
type ReportService interface {
	UploadReport(ctx context.Context, key string, body io.Reader) (string, error)
	TestConnection() error
}

type reportService struct {
	s3     *s3.Client
	bucket string
	region string
}

func NewReportService(accessKey, secretKey, bucketName, region string) (ReportService, error) {
	// Create custom credentials
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     accessKey,
			SecretAccessKey: secretKey,
		}, nil
	})

	// Create custom config with credentials and region
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg)

	return &reportService{
		s3:     client,
		bucket: bucketName,
		region: region,
	}, nil
}

func (s *reportService) UploadReport(ctx context.Context, key string, body io.Reader) (string, error) {
	uploader := manager.NewUploader(s.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String("application/json"),
	})

	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to upload report")
		return "", err
	}

	// Construct the URL manually
	reportURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	return reportURL, nil
}

func (s *reportService) TestConnection() error {
	// Try to list objects with max 1 result to test the connection
	_, err := s.s3.ListObjectsV2(context.TODO(), &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("AWS S3 Test Connection")

	return err
}
