// Package objectstore mirrors ingested repository archives to an S3-compatible bucket.
package objectstore

import (
	"context"
	"fmt"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const archiveContentType = "application/zip"

// Config holds the bucket connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether enough settings are present to mirror archives.
func (c Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

type Client struct {
	mc     *minio.Client
	bucket string
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &Client{mc: mc, bucket: cfg.Bucket, logger: logger}, nil
}

// ArchiveKey is the object key an archive for repoID is stored under.
func ArchiveKey(repoID string) string {
	return "archives/" + repoID + ".zip"
}

// PutArchive uploads the zip at filePath, creating the bucket on first use.
func (c *Client) PutArchive(ctx context.Context, repoID, filePath string) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", c.bucket, err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
		}
		c.logger.Info("Created archive bucket", zap.String("bucket", c.bucket))
	}

	info, err := c.mc.FPutObject(ctx, c.bucket, ArchiveKey(repoID), filePath, minio.PutObjectOptions{
		ContentType: archiveContentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}
	c.logger.Debug("Archive mirrored",
		zap.String("repo_id", repoID),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size))
	return nil
}
