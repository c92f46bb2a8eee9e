package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/recordsql/recordsql/internal/storage"
)

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// objectAPI is the subset of the minio client the store needs.
type objectAPI interface {
	PutObject(ctx context.Context, bucket, object string, body io.Reader, size int64, contentType string) (int64, error)
	GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	StatObject(ctx context.Context, bucket, object string) (storage.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store keeps vector artifacts as flat objects under an optional prefix of
// one S3-compatible bucket.
type Store struct {
	api    objectAPI
	bucket string
	prefix string
}

// New connects to the bucket. The bucket must exist unless AutoCreateBucket
// is set.
func New(ctx context.Context, cfg Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	store := newStore(bucket, cfg.Prefix, minioAPI{client: client})
	if err := store.checkBucket(ctx, strings.TrimSpace(cfg.Region), cfg.AutoCreateBucket); err != nil {
		return nil, err
	}
	return store, nil
}

func newStore(bucket, prefix string, api objectAPI) *Store {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix != "" {
		prefix = path.Clean(prefix)
	}
	return &Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	object, err := s.objectName(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	written, err := s.api.PutObject(ctx, s.bucket, object, body, size, opts.ContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload %s: %w", s.URI(key), err)
	}
	return storage.ObjectInfo{Key: key, Size: written}, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := s.objectName(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.api.GetObject(ctx, s.bucket, object)
	if err != nil {
		return nil, s.wrap("download", key, err)
	}
	return reader, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	object, err := s.objectName(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.api.StatObject(ctx, s.bucket, object)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("stat", key, err)
	}
	info.Key = key
	return info, nil
}

// URI is the s3:// address of an artifact, for logs and errors.
func (s *Store) URI(key string) string {
	object := strings.TrimSpace(key)
	if s.prefix != "" {
		object = s.prefix + "/" + object
	}
	return "s3://" + s.bucket + "/" + object
}

func (s *Store) wrap(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, s.URI(key))
	}
	return fmt.Errorf("%s %s: %w", op, s.URI(key), err)
}

func (s *Store) checkBucket(ctx context.Context, region string, create bool) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	switch {
	case exists:
		return nil
	case !create:
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// objectName maps an artifact key to its object name. Artifacts are flat, so
// keys with directory components are rejected.
func (s *Store) objectName(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid artifact key: %q", key)
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

// parseEndpoint accepts host:port or a full URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("object store endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

type minioAPI struct {
	client *minio.Client
}

func (m minioAPI) PutObject(ctx context.Context, bucket, object string, body io.Reader, size int64, contentType string) (int64, error) {
	info, err := m.client.PutObject(ctx, bucket, object, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return 0, notFound(err)
	}
	return info.Size, nil
}

// GetObject stats the object first so a missing artifact fails here rather
// than on the first read.
func (m minioAPI) GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, notFound(err)
	}
	return obj, nil
}

func (m minioAPI) StatObject(ctx context.Context, bucket, object string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, object, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (m minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m minioAPI) MakeBucket(ctx context.Context, bucket, region string) error {
	return m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func notFound(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
