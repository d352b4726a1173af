// Package archive stores the per-window artifacts of a run in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive writes the condensed log text and the analysis of one window.
type Archive interface {
	PutWindow(ctx context.Context, runID uuid.UUID, windowID int, condensed, analysis string) error
}

// Config holds the connection settings for MinioArchive.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// MinioArchive implements Archive on any S3-compatible store.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

// New connects to the object store and creates the bucket if it is missing.
func New(ctx context.Context, cfg Config) (*MinioArchive, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating archive client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchive{client: cli, bucket: cfg.Bucket}, nil
}

// PutWindow uploads both artifacts. Existing objects are overwritten, so a
// reprocessed window replaces its earlier artifacts.
func (a *MinioArchive) PutWindow(ctx context.Context, runID uuid.UUID, windowID int, condensed, analysis string) error {
	if err := a.put(ctx, CondensedKey(runID, windowID), condensed, "text/plain; charset=utf-8"); err != nil {
		return err
	}
	return a.put(ctx, AnalysisKey(runID, windowID), analysis, "text/markdown; charset=utf-8")
}

// Get returns the content of one archived object.
func (a *MinioArchive) Get(ctx context.Context, key string) (string, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return buf.String(), nil
}

func (a *MinioArchive) put(ctx context.Context, key, body, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader([]byte(body)), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// WindowPrefix is the object prefix shared by all artifacts of one window.
func WindowPrefix(runID uuid.UUID, windowID int) string {
	return fmt.Sprintf("runs/%s/windows/%d/", runID, windowID)
}

func CondensedKey(runID uuid.UUID, windowID int) string {
	return WindowPrefix(runID, windowID) + "condensed.txt"
}

func AnalysisKey(runID uuid.UUID, windowID int) string {
	return WindowPrefix(runID, windowID) + "analysis.md"
}

// Nop discards artifacts. It is used when no archive endpoint is configured.
type Nop struct{}

func (Nop) PutWindow(context.Context, uuid.UUID, int, string, string) error { return nil }

var (
	_ Archive = (*MinioArchive)(nil)
	_ Archive = Nop{}
)
