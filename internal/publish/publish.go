// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package publish uploads the built site to S3-compatible object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// ErrNotConfigured reports missing endpoint, bucket, or credentials.
var ErrNotConfigured = errors.New("object storage not configured")

// ObjectStore is the subset of the minio client the publisher needs.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher mirrors a directory into a bucket.
type Publisher struct {
	store  ObjectStore
	bucket string
	prefix string
	region string
	logger *slog.Logger
}

// New connects a minio client from cfg.
func New(cfg types.PublishConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return NewWithStore(client, cfg, logger), nil
}

// NewWithStore returns a Publisher over an existing store.
func NewWithStore(store ObjectStore, cfg types.PublishConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		store:  store,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		region: cfg.Region,
		logger: logger,
	}
}

// Publish uploads every regular file under dir and returns the number uploaded.
// The bucket is created when missing.
func (p *Publisher) Publish(ctx context.Context, dir string) (int, error) {
	exists, err := p.store.BucketExists(ctx, p.bucket)
	if err != nil {
		return 0, fmt.Errorf("checking bucket %s: %w", p.bucket, err)
	}
	if !exists {
		p.logger.Info("creating bucket", "bucket", p.bucket)
		if err := p.store.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return 0, fmt.Errorf("creating bucket %s: %w", p.bucket, err)
		}
	}

	uploaded := 0
	err = filepath.WalkDir(dir, func(filePath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, filePath)
		if err != nil {
			return err
		}
		object := ObjectName(p.prefix, rel)
		if _, err := p.store.FPutObject(ctx, p.bucket, object, filePath, minio.PutObjectOptions{
			ContentType: ContentType(filePath),
		}); err != nil {
			return fmt.Errorf("uploading %s: %w", object, err)
		}
		p.logger.Debug("uploaded", "object", object)
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	p.logger.Info("published site", "bucket", p.bucket, "files", uploaded)
	return uploaded, nil
}

// ObjectName joins prefix and a relative file path with forward slashes.
func ObjectName(prefix, rel string) string {
	return path.Join(prefix, filepath.ToSlash(rel))
}

// ContentType guesses from the extension, defaulting to octet-stream.
func ContentType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
