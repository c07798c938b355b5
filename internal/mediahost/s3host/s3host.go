// Package s3host stores cover images in an S3 compatible bucket (AWS, MinIO).
package s3host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
)

// Config describes the target bucket.
type Config struct {
	Region        string
	Bucket        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Host puts and deletes objects in one bucket.
type Host struct {
	client        objectAPI
	bucket        string
	publicBaseURL string
	now           func() time.Time
}

var (
	ErrNotConfigured = errors.New("s3 bucket is not configured")
	ErrForeignURL    = errors.New("url does not belong to this bucket")
)

// New builds an S3 client from static credentials. A custom BaseEndpoint
// switches the client to path-style addressing, as MinIO expects.
func New(ctx context.Context, cfg Config) (*Host, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("in internal/mediahost/s3host/s3host.go/New(): error while `awsconfig.LoadDefaultConfig()` calling: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return newHost(client, cfg), nil
}

func newHost(client objectAPI, cfg Config) *Host {
	return &Host{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: publicBaseURL(cfg),
		now:           time.Now,
	}
}

func publicBaseURL(cfg Config) string {
	switch {
	case cfg.PublicBaseURL != "":
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	case cfg.BaseEndpoint != "":
		return strings.TrimRight(cfg.BaseEndpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
}

// StorageKey returns a fresh object key under books/<year>/<month>/.
func (h *Host) StorageKey(img *mediahost.Image) string {
	d := h.now()
	return fmt.Sprintf("books/%d/%02d/%v%s", d.Year(), d.Month(), uuid.New(), img.Extension())
}

// Upload puts the decoded image into the bucket and returns its public URL.
func (h *Host) Upload(ctx context.Context, img *mediahost.Image) (string, error) {
	key := h.StorageKey(img)

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.ContentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		return "", fmt.Errorf("in internal/mediahost/s3host/s3host.go/Upload(): error while `h.client.PutObject()` calling: %w", err)
	}

	logger.Log.Debugw("image uploaded to s3", "bucket", h.bucket, "key", key)

	return h.publicBaseURL + "/" + key, nil
}

// Destroy deletes the object behind imageURL. S3 treats deleting a missing
// key as success.
func (h *Host) Destroy(ctx context.Context, imageURL string) error {
	key, err := h.Key(imageURL)
	if err != nil {
		return err
	}

	_, err = h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("in internal/mediahost/s3host/s3host.go/Destroy(): error while `h.client.DeleteObject()` calling: %w", err)
	}

	return nil
}

// Owns reports whether imageURL points into this bucket.
func (h *Host) Owns(imageURL string) bool {
	_, err := h.Key(imageURL)
	return err == nil
}

// Key maps a public URL back to its object key.
func (h *Host) Key(imageURL string) (string, error) {
	key, found := strings.CutPrefix(imageURL, h.publicBaseURL+"/")
	if !found || key == "" {
		return "", ErrForeignURL
	}

	return key, nil
}
