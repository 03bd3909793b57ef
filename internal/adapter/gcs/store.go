// Package gcs distributes the imputer artifact through a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Store reads and writes one artifact object in a bucket.
type Store struct {
	client *storage.Client
	bucket string
	object string
	logger *slog.Logger
}

// NewStore creates a Store. An empty credentialsFile uses application
// default credentials.
func NewStore(ctx context.Context, bucket, object, credentialsFile string, logger *slog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); err != nil {
			return nil, fmt.Errorf("service account key: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, object: object, logger: logger}, nil
}

// Fetch downloads the artifact object to dst.
func (s *Store) Fetch(ctx context.Context, dst string) error {
	r, err := s.client.Bucket(s.bucket).Object(s.object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("open gs://%s/%s: %w", s.bucket, s.object, err)
	}
	defer r.Close() //nolint:errcheck // read-only stream

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("create artifact: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck,gosec // copy error takes precedence
		return fmt.Errorf("download gs://%s/%s: %w", s.bucket, s.object, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}

	s.logger.Info("artifact downloaded",
		"bucket", s.bucket,
		"object", s.object,
		"path", dst,
		"bytes", n,
	)
	return nil
}

// Upload copies the local file at src to the artifact object.
func (s *Store) Upload(ctx context.Context, src string) error {
	f, err := os.Open(src) //nolint:gosec // path comes from the operator
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	w := s.client.Bucket(s.bucket).Object(s.object).NewWriter(ctx)
	w.ContentType = "application/json"
	w.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(w, f); err != nil {
		w.Close() //nolint:errcheck,gosec // copy error takes precedence
		return fmt.Errorf("upload %s to gs://%s/%s: %w", src, s.bucket, s.object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, s.object, err)
	}

	s.logger.Info("artifact uploaded", "bucket", s.bucket, "object", s.object, "path", src)
	return nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}
