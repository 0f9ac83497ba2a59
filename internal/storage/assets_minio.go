package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

const (
	minioNoSuchKey    = "NoSuchKey"
	minioNoSuchBucket = "NoSuchBucket"
)

// MinioConfig locates the bucket holding static assets.
type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"   yaml:"endpoint"`
	AccessKey string `env:"MINIO_ACCESS_KEY" yaml:"access_key"`
	SecretKey string `env:"MINIO_SECRET_KEY" yaml:"secret_key"`
	UseSSL    bool   `env:"MINIO_USE_SSL"    yaml:"use_ssl"`
	Bucket    string `env:"MINIO_BUCKET"     yaml:"bucket"`
}

// MinioAssetStore keeps each asset as an object named by its path. MinIO
// always stores a content type, so assets put without one are stored as
// domain.DefaultAssetContentType.
type MinioAssetStore struct {
	client *miniogo.Client
	bucket string
}

// NewMinioAssetStore connects and creates the bucket if it is missing.
func NewMinioAssetStore(ctx context.Context, cfg MinioConfig) (*MinioAssetStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w: %w", cfg.Bucket, domain.ErrUnavailable, err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioAssetStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads the asset, replacing any previous object.
func (s *MinioAssetStore) Put(ctx context.Context, asset *domain.Asset) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		asset.Path,
		bytes.NewReader(asset.Data),
		int64(len(asset.Data)),
		miniogo.PutObjectOptions{ContentType: asset.ServedContentType()},
	)
	if err != nil {
		return classifyMinio("put asset", err)
	}
	return nil
}

// Get downloads the asset at path.
func (s *MinioAssetStore) Get(ctx context.Context, path string) (*domain.Asset, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinio("get asset", err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		return nil, classifyMinio("stat asset", err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinio("read asset", err)
	}

	return &domain.Asset{
		Path:        path,
		Data:        data,
		ContentType: info.ContentType,
		UpdatedAt:   info.LastModified,
	}, nil
}

// Ping checks that the bucket is reachable.
func (s *MinioAssetStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return classifyMinio("ping", err)
	}
	return nil
}

func classifyMinio(op string, err error) error {
	var resp miniogo.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case minioNoSuchKey, minioNoSuchBucket:
			return domain.ErrNotFound
		}
	}
	if isConnectivityError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
