// Package s3storage is the MinIO/S3 backed FileStore. Original documents go
// to the raw bucket, rendered page previews to the thumbnail bucket.
package s3storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
)

// thumbPrefix marks preview keys, which live in the thumbnail bucket.
const thumbPrefix = "thumbs/"

// ErrObjectNotFound is returned for keys that do not exist in either bucket.
var ErrObjectNotFound = errors.New("object not found")

// Storage wraps MinIO/S3 interactions for raw documents and previews.
type Storage struct {
	client          *minio.Client
	rawBucket       string
	thumbnailBucket string
	region          string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client:          client,
		rawBucket:       cfg.RawBucket,
		thumbnailBucket: cfg.ThumbnailBucket,
		region:          cfg.S3Region,
	}, nil
}

// EnsureBuckets makes sure both buckets exist before use.
func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.rawBucket, s.thumbnailBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) bucketFor(key string) string {
	if strings.HasPrefix(key, thumbPrefix) {
		return s.thumbnailBucket
	}
	return s.rawBucket
}

// Put uploads data under key.
func (s *Storage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucketFor(key), key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload object %s: %w", key, err)
	}
	return nil
}

// Get fetches the whole object.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	return s.read(ctx, key, minio.GetObjectOptions{})
}

// Exists stats the object.
func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucketFor(key), key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", key, err)
	}
	return true, nil
}

// ReadRange fetches up to length bytes starting at offset. A negative length
// reads to the end of the object; a zero length only checks that it exists.
func (s *Storage) ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error) {
	if length == 0 {
		ok, err := s.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return []byte{}, nil
	}
	opts := minio.GetObjectOptions{}
	if err := setRange(&opts, offset, length); err != nil {
		return nil, fmt.Errorf("range %d+%d of %s: %w", offset, length, key, err)
	}
	return s.read(ctx, key, opts)
}

// setRange translates offset/length into a Range header. MinIO reads
// SetRange(0, 0) as the first byte only, so reading from the start to the end
// sends no range at all.
func setRange(opts *minio.GetObjectOptions, offset, length int64) error {
	switch {
	case offset < 0:
		return fmt.Errorf("negative offset %d", offset)
	case length < 0 && offset == 0:
		return nil
	case length < 0:
		return opts.SetRange(offset, 0)
	default:
		return opts.SetRange(offset, offset+length-1)
	}
}

func (s *Storage) read(ctx context.Context, key string, opts minio.GetObjectOptions) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketFor(key), key, opts)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return buf, nil
}

// PresignURL returns a signed GET URL for key that expires after ttl.
func (s *Storage) PresignURL(ctx context.Context, key, fileName string, ttl time.Duration) (string, error) {
	params := url.Values{}
	if fileName != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketFor(key), key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return u.String(), nil
}

func isNotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
