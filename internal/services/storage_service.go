// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/ndstrzz/taedal-v7-sub000/internal/apperrors"
	"github.com/ndstrzz/taedal-v7-sub000/internal/config"
)

const (
	s3RefScheme    = "s3://"
	localRefScheme = "local://"
)

// ObjectStore keeps executed documents.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

type StorageService struct {
	s3Client *s3.S3
	bucket   string
	localDir string
	baseURL  string
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	s := &StorageService{
		bucket:   cfg.AWS.S3Bucket,
		localDir: cfg.Storage.LocalDir,
		baseURL:  strings.TrimRight(cfg.Storage.BaseURL, "/"),
	}

	if !cfg.AWS.S3Enabled() {
		// Local disk for development
		return s, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AWS.AccessKeyID,
			cfg.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	s.s3Client = s3.New(sess)
	return s, nil
}

// NewS3StorageService wraps an existing S3 client.
func NewS3StorageService(client *s3.S3, bucket string) *StorageService {
	return &StorageService{s3Client: client, bucket: bucket}
}

func (s *StorageService) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.s3Client != nil {
		return s.putS3(ctx, key, data, contentType)
	}
	return s.putLocal(key, data)
}

func (s *StorageService) putS3(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return "", apperrors.Transport("s3 put object", err)
	}

	return s3RefScheme + s.bucket + "/" + key, nil
}

func (s *StorageService) putLocal(key string, data []byte) (string, error) {
	path, err := s.localPath(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", apperrors.Storage("create upload directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", apperrors.Storage("write upload", err)
	}

	return localRefScheme + key, nil
}

func (s *StorageService) localPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", apperrors.Validation("empty storage key")
	}
	return filepath.Join(s.localDir, filepath.FromSlash(clean)), nil
}

// SignedURL returns a time-limited download URL for ref.
func (s *StorageService) SignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	switch {
	case strings.HasPrefix(ref, s3RefScheme):
		if s.s3Client == nil {
			return "", apperrors.Transport("presign", fmt.Errorf("S3 client not configured"))
		}
		bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, s3RefScheme), "/")
		if !ok || key == "" {
			return "", apperrors.Validation("malformed storage reference " + ref)
		}

		req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		req.SetContext(ctx)

		signed, err := req.Presign(ttl)
		if err != nil {
			return "", apperrors.Transport("presign", err)
		}
		return signed, nil

	case strings.HasPrefix(ref, localRefScheme):
		// Served by the static /uploads route in development.
		key := strings.TrimPrefix(ref, localRefScheme)
		expires := time.Now().Add(ttl).Unix()
		return fmt.Sprintf("%s/uploads/%s?expires=%d", s.baseURL, (&url.URL{Path: key}).EscapedPath(), expires), nil

	default:
		return "", apperrors.Validation("unknown storage reference " + ref)
	}
}

const fallbackContentType = "application/octet-stream"

// Executed documents are usually PDFs or scans.
var documentTypes = []struct {
	contentType string
	ext         string
	signature   []byte
}{
	{"application/pdf", ".pdf", []byte("%PDF-")},
	{"image/png", ".png", []byte{0x89, 0x50, 0x4E, 0x47}},
	{"image/jpeg", ".jpg", []byte{0xFF, 0xD8, 0xFF}},
}

// DetectDocumentType maps the file signature of a document to a content type
// and key extension. Unrecognised bytes are application/octet-stream with no
// extension and known is false.
func DetectDocumentType(data []byte) (contentType, ext string, known bool) {
	for _, t := range documentTypes {
		if bytes.HasPrefix(data, t.signature) {
			return t.contentType, t.ext, true
		}
	}
	return fallbackContentType, "", false
}
