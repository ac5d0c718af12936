// Package s3 stores warehouse table files in an S3 compatible bucket through
// minio-go. Every key is scoped under an optional prefix so several
// deployments can share one bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/duckmesh/querychat/internal/storage"
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

// bucketAPI is the slice of a bucket the store needs. Keys passed in are
// already scoped.
type bucketAPI interface {
	put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	open(ctx context.Context, key string) (io.ReadCloser, error)
	remove(ctx context.Context, key string) error
	walk(ctx context.Context, prefix string, visit func(storage.ObjectInfo)) error
	ensure(ctx context.Context, region string) error
}

type Store struct {
	bucket bucketAPI
	name   string
	scope  string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("s3 bucket is required")
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

	store := newStore(&minioBucket{client: client, name: name}, name, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.bucket.ensure(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, fmt.Errorf("ensure bucket %q: %w", name, err)
		}
	}
	return store, nil
}

func newStore(bucket bucketAPI, name, prefix string) *Store {
	scope := strings.Trim(strings.TrimSpace(prefix), "/")
	if scope != "" {
		scope = path.Clean(scope)
	}
	if scope == "." {
		scope = ""
	}
	return &Store{bucket: bucket, name: name, scope: scope}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	scoped, err := s.scoped(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.bucket.put(ctx, scoped, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("put %s/%s: %w", s.name, scoped, err)
	}
	info.Key = s.unscoped(info.Key)
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	scoped, err := s.scoped(key)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.open(ctx, scoped)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("get %s/%s: %w", s.name, scoped, err)
	}
	return reader, nil
}

// Delete treats a missing object as already deleted.
func (s *Store) Delete(ctx context.Context, key string) error {
	scoped, err := s.scoped(key)
	if err != nil {
		return err
	}
	if err := s.bucket.remove(ctx, scoped); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete %s/%s: %w", s.name, scoped, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	relative := strings.TrimLeft(strings.TrimSpace(prefix), "/")
	if slices.Contains(strings.Split(relative, "/"), "..") {
		return nil, fmt.Errorf("invalid list prefix %q", prefix)
	}
	full := relative
	if s.scope != "" {
		full = s.scope + "/" + relative
	}

	var objects []storage.ObjectInfo
	err := s.bucket.walk(ctx, full, func(info storage.ObjectInfo) {
		info.Key = s.unscoped(info.Key)
		objects = append(objects, info)
	})
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", s.name, full, err)
	}
	slices.SortFunc(objects, func(a, b storage.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return objects, nil
}

func (s *Store) scoped(key string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(key), "/")
	if trimmed == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	if s.scope == "" {
		return cleaned, nil
	}
	return s.scope + "/" + cleaned, nil
}

func (s *Store) unscoped(key string) string {
	if s.scope == "" {
		return key
	}
	return strings.TrimPrefix(key, s.scope+"/")
}

// parseEndpoint accepts either host[:port] or a URL. An https URL forces TLS
// regardless of useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("s3 endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse s3 endpoint: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("s3 endpoint %q has no host", raw)
	}
	switch parsed.Scheme {
	case "https":
		return parsed.Host, true, nil
	case "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported s3 endpoint scheme %q", parsed.Scheme)
	}
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, notFound(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// open stats the object first because GetObject defers errors until the
// first read.
func (b *minioBucket) open(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, notFound(err)
	}
	return object, nil
}

func (b *minioBucket) remove(ctx context.Context, key string) error {
	return notFound(b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}))
}

func (b *minioBucket) walk(ctx context.Context, prefix string, visit func(storage.ObjectInfo)) error {
	for object := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return notFound(object.Err)
		}
		visit(storage.ObjectInfo{
			Key:          object.Key,
			Size:         object.Size,
			ETag:         object.ETag,
			LastModified: object.LastModified,
		})
	}
	return nil
}

func (b *minioBucket) ensure(ctx context.Context, region string) error {
	exists, err := b.client.BucketExists(ctx, b.name)
	if err != nil || exists {
		return err
	}
	return b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region})
}

// notFound maps minio's missing key and bucket codes to
// storage.ErrObjectNotFound.
func notFound(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
