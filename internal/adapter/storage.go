package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"webpsync/internal/apperr"
	"webpsync/internal/config"
)

var (
	ErrObjectExists = errors.New("object already exists")
	ErrPathOutside  = errors.New("path escapes storage root")
)

type UploadOptions struct {
	ContentType string
	Upsert      bool
}

type StorageAdapter struct {
	mode          string
	client        *s3.Client
	minio         *minio.Client
	bucket        string
	region        string
	localDir      string
	publicBaseURL string
}

func NewStorageAdapter(cfg *config.Config, s3Client *s3.Client, minioClient *minio.Client) *StorageAdapter {
	return &StorageAdapter{
		mode:          cfg.StorageMode,
		client:        s3Client,
		minio:         minioClient,
		bucket:        cfg.StorageBucket,
		region:        cfg.S3Region,
		localDir:      cfg.LocalStorageDir,
		publicBaseURL: cfg.PublicBaseURL,
	}
}

func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gagal memuat konfigurasi aws: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func NewMinioClient(cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("gagal inisialisasi klien minio: %w", err)
	}
	return client, nil
}

func (s *StorageAdapter) Mode() string {
	return s.mode
}

// Upload stores data under path and returns the stored path. With
// Upsert=false an existing object is never overwritten.
func (s *StorageAdapter) Upload(ctx context.Context, path string, data []byte, opts UploadOptions) (string, error) {
	const op = "adapter.Upload"
	key := filepath.ToSlash(path)

	var err error
	switch s.mode {
	case "s3":
		err = s.putS3(ctx, key, data, opts)
	case "minio":
		err = s.putMinio(ctx, key, data, opts)
	default:
		err = s.putLocal(key, data, opts)
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindStorage, op, fmt.Sprintf("gagal mengunggah '%s'", key), err)
	}
	return key, nil
}

func (s *StorageAdapter) putS3(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is not initialized")
	}
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(opts.ContentType),
	}
	if !opts.Upsert {
		input.IfNoneMatch = aws.String("*")
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

func (s *StorageAdapter) putMinio(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	if s.minio == nil {
		return fmt.Errorf("minio client is not initialized")
	}
	if !opts.Upsert {
		_, err := s.minio.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return ErrObjectExists
		}
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return err
		}
	}
	_, err := s.minio.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: opts.ContentType,
	})
	return err
}

// localPath resolves key under localDir and refuses anything outside it.
func (s *StorageAdapter) localPath(key string) (string, error) {
	root, err := filepath.Abs(s.localDir)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(root, filepath.FromSlash(key))
	rel, err := filepath.Rel(root, fullPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutside, key)
	}
	return fullPath, nil
}

func (s *StorageAdapter) putLocal(key string, data []byte, opts UploadOptions) error {
	fullPath, err := s.localPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !opts.Upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	outFile, err := os.OpenFile(fullPath, flags, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrObjectExists
		}
		return err
	}

	_, writeErr := outFile.Write(data)
	closeErr := outFile.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// PublicURL maps a stored path to the URL saved on content rows.
func (s *StorageAdapter) PublicURL(path string) string {
	key := strings.TrimLeft(filepath.ToSlash(path), "/")
	if s.publicBaseURL != "" {
		return strings.TrimRight(s.publicBaseURL, "/") + "/" + key
	}
	switch s.mode {
	case "s3":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	case "minio":
		if s.minio != nil {
			return s.minio.EndpointURL().String() + "/" + s.bucket + "/" + key
		}
	}
	return "/files/" + key
}

// PathFromURL is the inverse of PublicURL. ok is false for foreign URLs.
func (s *StorageAdapter) PathFromURL(rawURL string) (string, bool) {
	prefix := s.PublicURL("")
	if !strings.HasPrefix(rawURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(rawURL, prefix)
	if u, err := url.Parse(key); err == nil {
		key = u.Path
	}
	return key, key != ""
}

func (s *StorageAdapter) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	key := filepath.ToSlash(path)
	switch s.mode {
	case "s3":
		if s.client == nil {
			return nil, fmt.Errorf("s3 client is not initialized")
		}
		output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, err
		}
		return output.Body, nil
	case "minio":
		if s.minio == nil {
			return nil, fmt.Errorf("minio client is not initialized")
		}
		return s.minio.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	}
	fullPath, err := s.localPath(key)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

func (s *StorageAdapter) Delete(ctx context.Context, path string) error {
	key := filepath.ToSlash(path)
	switch s.mode {
	case "s3":
		if s.client == nil {
			return fmt.Errorf("s3 client is not initialized")
		}
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	case "minio":
		if s.minio == nil {
			return fmt.Errorf("minio client is not initialized")
		}
		return s.minio.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	}

	fullPath, err := s.localPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			slog.Debug("File lokal tidak ditemukan saat penghapusan", "path", key)
			return nil
		}
		return err
	}
	return nil
}
