// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/creatorshield-backend/internal/config"
)

// FileUpload is one evidence file handed over by the transport.
type FileUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Description string
	Body        io.Reader
}

type StoredFile struct {
	URL      string `json:"url"`
	Key      string `json:"key"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// FileStore persists binary evidence outside the database.
type FileStore interface {
	Upload(ctx context.Context, file FileUpload) (StoredFile, error)
	Delete(ctx context.Context, key string) error
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

// S3Storage stores files in S3. Without credentials it simulates storage
// for local development.
type S3Storage struct {
	s3Client *s3.S3
	config   *config.Config
	options  UploadOptions
	now      func() time.Time
}

func NewS3Storage(cfg *config.Config) (*S3Storage, error) {
	storage := &S3Storage{
		config:  cfg,
		options: EvidenceUploadOptions(cfg.Claims.MaxFileSizeMB),
		now:     time.Now,
	}
	if cfg.AWS.AccessKeyID == "" {
		// Return service without S3 for local development
		return storage, nil
	}

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

	storage.s3Client = s3.New(sess)
	return storage, nil
}

// EvidenceUploadOptions limits claim evidence to documents, screenshots and
// short recordings.
func EvidenceUploadOptions(maxSizeMB int) UploadOptions {
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	return UploadOptions{
		Folder:       "claims/evidence",
		MaxSize:      int64(maxSizeMB) * 1024 * 1024,
		AllowedTypes: []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".pdf", ".csv", ".txt", ".mp4", ".mov"},
	}
}

func (s *S3Storage) Upload(ctx context.Context, file FileUpload) (StoredFile, error) {
	if err := s.options.Check(file); err != nil {
		return StoredFile{}, err
	}

	key := s.generateFileName(file.FileName)

	fileBytes, err := io.ReadAll(file.Body)
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to read file: %w", err)
	}
	if s.options.MaxSize > 0 && int64(len(fileBytes)) > s.options.MaxSize {
		return StoredFile{}, fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", len(fileBytes), s.options.MaxSize)
	}

	if s.s3Client == nil {
		return s.uploadToLocal(fileBytes, key, file.ContentType), nil
	}

	_, err = s.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(file.ContentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return StoredFile{
		URL:      s.getS3URL(key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: file.ContentType,
	}, nil
}

func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if s.s3Client == nil {
		logrus.WithField("key", key).Info("File would be deleted")
		return nil
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}

	return nil
}

// Check validates declared size and extension before any bytes are read.
func (o UploadOptions) Check(file FileUpload) error {
	if o.MaxSize > 0 && file.Size > o.MaxSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size %d bytes", file.Size, o.MaxSize)
	}

	if len(o.AllowedTypes) > 0 {
		fileExt := strings.ToLower(filepath.Ext(file.FileName))
		for _, allowedType := range o.AllowedTypes {
			if fileExt == allowedType {
				return nil
			}
		}
		return fmt.Errorf("file type %q is not allowed", fileExt)
	}
	return nil
}

func (s *S3Storage) uploadToLocal(fileBytes []byte, key, contentType string) StoredFile {
	return StoredFile{
		URL:      fmt.Sprintf("http://%s:%s/uploads/%s", s.config.Server.Host, s.config.Server.Port, key),
		Key:      key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}
}

func (s *S3Storage) generateFileName(originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	filename := fmt.Sprintf("%s_%s%s", s.now().Format("20060102"), uuid.New().String()[:8], ext)

	if s.options.Folder != "" {
		return fmt.Sprintf("%s/%s", s.options.Folder, filename)
	}
	return filename
}

func (s *S3Storage) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}
