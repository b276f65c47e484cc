package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"drafthub/internal/contextutil"
)

// Namespaces of the document bodies.
const (
	NamespaceDrafts = "drafts"
	NamespaceNotes  = "notes"
)

// ErrUnknownNamespace is returned for a namespace with no configured bucket.
var ErrUnknownNamespace = errors.New("unknown blob namespace")

// Config describes the S3-compatible endpoint and the bucket behind each namespace.
type Config struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	DraftsBucket string
	NotesBucket  string
}

// Writer stores document bodies in an S3-compatible object store.
type Writer struct {
	client  *minio.Client
	buckets map[string]string
	timeout time.Duration
}

// New creates a Writer backed by MinIO.
func New(cfg Config) (*Writer, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return NewWithClient(client, cfg.DraftsBucket, cfg.NotesBucket), nil
}

// NewWithClient creates a Writer from an existing client.
func NewWithClient(client *minio.Client, draftsBucket, notesBucket string) *Writer {
	return &Writer{
		client: client,
		buckets: map[string]string{
			NamespaceDrafts: draftsBucket,
			NamespaceNotes:  notesBucket,
		},
		timeout: 2 * time.Minute,
	}
}

func (w *Writer) bucket(namespace string) (string, error) {
	b, ok := w.buckets[namespace]
	if !ok || b == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownNamespace, namespace)
	}
	return b, nil
}

// EnsureBuckets creates any configured bucket that does not exist yet.
func (w *Writer) EnsureBuckets(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)
	for namespace, bucket := range w.buckets {
		exists, err := w.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		logger.InfoContext(ctx, "created bucket", "namespace", namespace, "bucket", bucket)
	}
	return nil
}

// Put uploads payload under namespace/key. Tags are validated before any I/O;
// metadata is attached as user metadata.
func (w *Writer) Put(ctx context.Context, namespace, key, contentType string, payload []byte, metadata, tags map[string]string) error {
	logger := contextutil.LoggerFromContext(ctx)

	bucket, err := w.bucket(namespace)
	if err != nil {
		return err
	}
	if key == "" {
		return &ValidationError{Reason: "object key is empty"}
	}
	if err := ValidateTags(tags); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	info, err := w.client.PutObject(ctx, bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
		UserTags:     tags,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to put object", "bucket", bucket, "key", key, "error", err)
		return fmt.Errorf("failed to put object %s/%s: %w", bucket, key, err)
	}

	logger.DebugContext(ctx, "put object", "bucket", bucket, "key", key, "size", info.Size)
	return nil
}

// Delete removes namespace/key. Deleting a missing object is a no-op.
func (w *Writer) Delete(ctx context.Context, namespace, key string) error {
	bucket, err := w.bucket(namespace)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := w.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("failed to delete object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get downloads namespace/key.
func (w *Writer) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	bucket, err := w.bucket(namespace)
	if err != nil {
		return nil, err
	}

	obj, err := w.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Exists reports whether namespace/key is present.
func (w *Writer) Exists(ctx context.Context, namespace, key string) (bool, error) {
	bucket, err := w.bucket(namespace)
	if err != nil {
		return false, err
	}

	_, err = w.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// Ping checks that the object store answers for the drafts bucket.
func (w *Writer) Ping(ctx context.Context) error {
	bucket, err := w.bucket(NamespaceDrafts)
	if err != nil {
		return err
	}
	_, err = w.client.BucketExists(ctx, bucket)
	return err
}
