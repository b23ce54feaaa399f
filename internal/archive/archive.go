package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/linkpulse/collector/internal/errors"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Client keeps a copy of every captured export in S3-compatible object
// storage. The archive is an audit trail; the pipeline treats its failures
// as non-fatal.
type Client struct {
	client *minio.Client
	bucket string
}

// Config holds the configuration for the archive client.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New creates an archive client.
func New(cfg *Config) (*Client, error) {
	// minio-go expects host:port without a protocol prefix.
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.Storage("failed to create archive client").WithCause(err)
	}

	return &Client{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// objectKey lays exports out by flow and capture date so a day's runs group
// together.
func objectKey(flow, name string, when time.Time) string {
	return fmt.Sprintf("exports/%s/%s/%s", flow, when.UTC().Format("2006-01-02"), name)
}

// Archive stores one captured export.
func (c *Client) Archive(ctx context.Context, flow, name string, data []byte) error {
	key := objectKey(flow, name, time.Now())

	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: xlsxContentType,
	})
	if err != nil {
		return apperrors.Storage(fmt.Sprintf("failed to archive export %s", key)).WithCause(err)
	}
	return nil
}

// EnsureBucket creates the archive bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return apperrors.Storage("failed to check bucket existence").WithCause(err)
	}
	if !exists {
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return apperrors.Storage(fmt.Sprintf("failed to create bucket %s", c.bucket)).WithCause(err)
		}
	}
	return nil
}

// Ping checks if the archive storage is accessible.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	return err
}
