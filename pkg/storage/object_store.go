package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"inkshelf/pkg/domain"
)

// Kind selects the upload policy (folder, accepted formats).
type Kind string

const (
	KindCoverImage   Kind = "cover-image"
	KindDocument     Kind = "document"
	KindProfileImage Kind = "profile-image"
)

var kindFolders = map[Kind]string{
	KindCoverImage:   "book-covers",
	KindDocument:     "book-pdfs",
	KindProfileImage: "admin-profiles",
}

var kindContentTypes = map[Kind]map[string]struct{}{
	KindCoverImage: {
		"image/jpeg": {},
		"image/jpg":  {},
		"image/png":  {},
		"image/webp": {},
	},
	KindDocument: {
		"application/pdf": {},
	},
	KindProfileImage: {
		"image/jpeg": {},
		"image/jpg":  {},
		"image/png":  {},
		"image/webp": {},
	},
}

// AllowedContentType reports whether the mime type is accepted for the kind.
func AllowedContentType(kind Kind, contentType string) bool {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	types, ok := kindContentTypes[kind]
	if !ok {
		return false
	}
	_, ok = types[contentType]
	return ok
}

// Upload carries one inbound file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// MediaStore is the media upload gateway: it stores binary uploads remotely
// and returns stable URLs plus external identifiers usable for deletion.
type MediaStore interface {
	Upload(ctx context.Context, kind Kind, up Upload) (domain.FileRef, error)
	PresignGet(ctx context.Context, externalID string, expiry time.Duration) (string, error)
	// Delete is idempotent: removing an unknown id is not an error.
	Delete(ctx context.Context, externalID string) error
}

// MinioStore implements MediaStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket}, nil
}

// Upload stores an object under the kind's folder and returns its reference.
func (m *MinioStore) Upload(ctx context.Context, kind Kind, up Upload) (domain.FileRef, error) {
	folder, ok := kindFolders[kind]
	if !ok {
		return domain.FileRef{}, fmt.Errorf("unknown upload kind %q", kind)
	}
	if !AllowedContentType(kind, up.ContentType) {
		return domain.FileRef{}, fmt.Errorf("unsupported content type %q for %s", up.ContentType, kind)
	}
	key := folder + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(up.Filename))
	_, err := m.client.PutObject(ctx, m.bucket, key, up.Reader, up.Size, minio.PutObjectOptions{
		ContentType: up.ContentType,
	})
	if err != nil {
		return domain.FileRef{}, fmt.Errorf("put object: %w", err)
	}
	return domain.FileRef{
		URL:        m.objectURL(key),
		ExternalID: key,
		Filename:   filepath.Base(up.Filename),
		SizeBytes:  up.Size,
	}, nil
}

// PresignGet generates a pre-signed GET URL for the object.
func (m *MinioStore) PresignGet(ctx context.Context, externalID string, expiry time.Duration) (string, error) {
	url, err := m.client.PresignedGetObject(ctx, m.bucket, externalID, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return url.String(), nil
}

// Delete removes an object. Unknown ids are silently ignored by the backend.
func (m *MinioStore) Delete(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return nil
	}
	if err := m.client.RemoveObject(ctx, m.bucket, externalID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (m *MinioStore) objectURL(key string) string {
	base := m.client.EndpointURL().String()
	return strings.TrimSuffix(base, "/") + path.Join("/", m.bucket, key)
}
