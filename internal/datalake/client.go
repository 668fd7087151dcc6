package datalake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/fintracker/fintracker/internal/config"
)

// Client wraps the S3 API with the lake's key layout. All methods take
// full object keys except the Latest helpers, which resolve the newest
// version under a layer prefix first.
type Client struct {
	s3         *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
	env        string
	log        zerolog.Logger
}

// New builds a lake client from the application configuration. The
// static credential pair from the environment is used when present,
// otherwise the SDK's default chain applies.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg)
	return &Client{
		s3:         s3Client,
		uploader:   manager.NewUploader(s3Client),
		downloader: manager.NewDownloader(s3Client),
		bucket:     cfg.S3Bucket,
		env:        cfg.Environment,
		log:        log.With().Str("component", "datalake").Str("bucket", cfg.S3Bucket).Logger(),
	}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Env returns the environment segment the client prefixes keys with.
func (c *Client) Env() string {
	return c.env
}

// Ping verifies the bucket is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("bucket %s not reachable: %w", c.bucket, err)
	}
	return nil
}

// Upload writes one object.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	c.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("Object uploaded")
	return nil
}

// Download reads one object fully into memory. The lake's CSV files are
// small, tens of kilobytes at most.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := c.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Delete removes one object. S3 treats deleting a missing key as
// success, so Delete does too.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	c.log.Debug().Str("key", key).Msg("Object deleted")
	return nil
}

// Exists reports whether an object is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s: %w", key, err)
	}
	return true, nil
}

// ListKeys returns every key under a prefix, in ascending key order as
// S3 yields them.
func (c *Client) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// LatestKey resolves the newest object of one artifact in a layer:
// the greatest key under the layer prefix plus file prefix. The file
// name timestamps make greatest mean most recent. found is false when
// the artifact has never been written.
func (c *Client) LatestKey(ctx context.Context, layer Layer, filePrefix string) (string, bool, error) {
	keys, err := c.ListKeys(ctx, LayerPrefix(c.env, layer)+filePrefix)
	if err != nil {
		return "", false, err
	}
	if len(keys) == 0 {
		return "", false, nil
	}

	latest := keys[0]
	for _, k := range keys[1:] {
		if k > latest {
			latest = k
		}
	}
	return latest, true, nil
}

// DownloadLatest fetches the newest version of one artifact in a layer.
func (c *Client) DownloadLatest(ctx context.Context, layer Layer, filePrefix string) ([]byte, string, bool, error) {
	key, found, err := c.LatestKey(ctx, layer, filePrefix)
	if err != nil || !found {
		return nil, "", false, err
	}
	data, err := c.Download(ctx, key)
	if err != nil {
		return nil, "", false, err
	}
	return data, key, true, nil
}

// UploadVersioned writes one artifact under a fresh timestamped key and
// returns the key.
func (c *Client) UploadVersioned(ctx context.Context, layer Layer, filePrefix string, at time.Time, data []byte) (string, error) {
	key := VersionedKey(c.env, layer, filePrefix, at)
	if err := c.Upload(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// LatestStagingSeries fetches the newest staged series file for a
// platform. Satisfies the series read path's fallback source.
func (c *Client) LatestStagingSeries(ctx context.Context, platformSlug string) ([]byte, bool, error) {
	data, _, found, err := c.DownloadLatest(ctx, LayerStaging, StagingSeriesPrefix(platformSlug))
	return data, found, err
}
