// Package archive keeps a copy of uploaded decks in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the bucket connection.
type Options struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store uploads deck PDFs to a bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// New connects to the endpoint and creates the bucket when it is missing.
func New(ctx context.Context, opts Options) (*Store, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating archive client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", opts.Bucket, err)
		}
	}
	return &Store{client: cli, bucket: opts.Bucket}, nil
}

// Archive stores one uploaded deck and returns its object key.
func (s *Store) Archive(ctx context.Context, userID, name string, data []byte) (string, error) {
	key := ObjectKey(userID, name, time.Now(), uuid.NewString())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{"user-id": userID},
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey builds <user>/<yyyy>/<mm>/<id>-<name>. Path separators in the
// file name are flattened so an upload cannot escape the user's prefix.
func ObjectKey(userID, name string, at time.Time, id string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "deck.pdf"
	}
	return fmt.Sprintf("%s/%04d/%02d/%s-%s", userID, at.Year(), int(at.Month()), id, name)
}
