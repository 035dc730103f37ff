package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUnsupportedType = errors.New("unsupported logo content type")

// LogoStore keeps company logos in object storage.
type LogoStore interface {
	// UploadLogo stores the image and returns its public URL.
	UploadLogo(ctx context.Context, tenantID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error)
	DeleteObject(ctx context.Context, objectName string) error
	EnsureBucketExists(ctx context.Context) error
	Ping(ctx context.Context) error
}

type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

type minioLogoStore struct {
	client     objectClient
	bucket     string
	publicBase string
}

var logoExtensions = map[string]string{
	"image/png":     "png",
	"image/jpeg":    "jpg",
	"image/jpg":     "jpg",
	"image/gif":     "gif",
	"image/webp":    "webp",
	"image/svg+xml": "svg",
}

// NewMinioLogoStore connects to endpoint. publicBase is the URL prefix under
// which bucket objects are publicly readable; it defaults to the endpoint.
func NewMinioLogoStore(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBase string) (LogoStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	if publicBase == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		publicBase = fmt.Sprintf("%s://%s/%s", scheme, endpoint, bucket)
	}
	return newMinioLogoStore(client, bucket, publicBase), nil
}

func newMinioLogoStore(client objectClient, bucket, publicBase string) *minioLogoStore {
	return &minioLogoStore{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}
}

// LogoObjectName is logos/<tenant>/<random>.<ext>.
func LogoObjectName(tenantID uuid.UUID, contentType string) (string, error) {
	ext, ok := logoExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnsupportedType, contentType)
	}
	return fmt.Sprintf("logos/%s/%s.%s", tenantID, uuid.New(), ext), nil
}

// ObjectNameFromURL recovers the object name from a URL returned by
// UploadLogo.
func ObjectNameFromURL(url string) (string, bool) {
	i := strings.Index(url, "/logos/")
	if i < 0 {
		return "", false
	}
	return url[i+1:], true
}

func (m *minioLogoStore) UploadLogo(ctx context.Context, tenantID uuid.UUID, reader io.Reader, size int64, contentType string) (string, error) {
	objectName, err := LogoObjectName(tenantID, contentType)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload logo: %w", err)
	}
	return m.publicBase + "/" + objectName, nil
}

func (m *minioLogoStore) DeleteObject(ctx context.Context, objectName string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
}

func (m *minioLogoStore) EnsureBucketExists(ctx context.Context) error {
	found, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !found {
		return m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	}
	return nil
}

// Ping checks the bucket is reachable.
func (m *minioLogoStore) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucket)
	return err
}
