// Package storage writes transform artifacts and converted batches to an
// object store (local directory, S3-compatible, or GCS).
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // local driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// Config configures the storage backend.
type Config struct {
	Backend string // "local" | "gcs" | "s3"

	// Local filesystem
	LocalDir string

	// GCS / S3 (S3 also works for B2, R2, MinIO)
	Bucket     string
	S3Endpoint string // custom endpoint for B2/MinIO/R2
	S3Region   string

	// Common
	Prefix string // path prefix within bucket or local dir

	// Compress zstd-compresses uploaded artifacts (a ".zst" suffix is
	// appended to the stored key). Batch writes are never compressed:
	// parquet payloads carry their own compression.
	Compress bool
}

// ObjectStore writes artifacts keyed by request.
type ObjectStore struct {
	bucket   *blob.Bucket
	prefix   string
	uri      string
	compress bool
}

// New opens a storage backend based on configuration.
func New(ctx context.Context, cfg Config) (*ObjectStore, error) {
	bucketURL, err := bucketURL(cfg)
	if err != nil {
		return nil, err
	}

	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}

	return &ObjectStore{
		bucket:   bucket,
		prefix:   cfg.Prefix,
		uri:      bucketURL,
		compress: cfg.Compress,
	}, nil
}

func bucketURL(cfg Config) (string, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return "", fmt.Errorf("local_dir required for local backend")
		}
		if err := os.MkdirAll(cfg.LocalDir, 0755); err != nil {
			return "", fmt.Errorf("create base directory %s: %w", cfg.LocalDir, err)
		}
		return "file://" + cfg.LocalDir, nil

	case "gcs":
		if cfg.Bucket == "" {
			return "", fmt.Errorf("bucket required for gcs backend")
		}
		return "gs://" + cfg.Bucket, nil

	case "s3":
		if cfg.Bucket == "" {
			return "", fmt.Errorf("bucket required for s3 backend")
		}
		u := "s3://" + cfg.Bucket
		params := url.Values{}
		if cfg.S3Region != "" {
			params.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			params.Set("endpoint", cfg.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			u = u + "?" + params.Encode()
		}
		return u, nil

	default:
		return "", fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// NormalizeName flattens a file path into a single storage token by
// replacing path separators with colons.
func NormalizeName(filePath string) string {
	return strings.ReplaceAll(filePath, "/", ":")
}

// UploadFile uploads the file at localPath under <request_id>/<name>.
func (s *ObjectStore) UploadFile(ctx context.Context, requestID, name, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := s.prefix + requestID + "/" + name
	if s.compress {
		key += ".zst"
	}

	w, err := s.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if s.compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			w.Close()
			return fmt.Errorf("create zstd writer: %w", err)
		}
		if _, err := io.Copy(zw, f); err != nil {
			zw.Close()
			w.Close()
			return fmt.Errorf("compress %s to %s: %w", localPath, key, err)
		}
		if err := zw.Close(); err != nil {
			w.Close()
			return fmt.Errorf("flush zstd stream for %s: %w", key, err)
		}
	} else {
		if _, err := io.Copy(w, f); err != nil {
			w.Close()
			return fmt.Errorf("upload %s to %s: %w", localPath, key, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}
	return nil
}

// Write stores data at the given key. Used for converted batch payloads.
func (s *ObjectStore) Write(ctx context.Context, key string, data []byte) error {
	if err := s.bucket.WriteAll(ctx, s.prefix+key, data, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Exists reports whether an object is already stored at key.
func (s *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.prefix+key)
}

// URI returns the canonical URI of the backing bucket.
func (s *ObjectStore) URI() string {
	return s.uri
}

// Close releases the bucket connection.
func (s *ObjectStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}
