package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/contentpilot-ai/contentpilot/internal/pkg/config"
)

// ArticleStore persists generated article bodies in object storage. The
// object key is recorded on the generation log entry as the content
// reference.
type ArticleStore struct {
	client *s3.Client
	bucket string
}

func NewArticleStore(ctx context.Context, cfg *config.S3Config) (*ArticleStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().Str("bucket", cfg.Bucket).Msg("Article store ready")

	return &ArticleStore{client: client, bucket: cfg.Bucket}, nil
}

// Put stores one generated article and returns its object key.
func (s *ArticleStore) Put(ctx context.Context, ownerID, scheduleID uuid.UUID, content string) (string, error) {
	key := fmt.Sprintf("articles/%s/%s/%d.html", ownerID, scheduleID, time.Now().UnixMilli())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store article: %w", err)
	}

	return key, nil
}
