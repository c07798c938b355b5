// Package cloudinary stores cover images on Cloudinary.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	sdk "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/patric-chuzhbe/bookshelf/internal/logger"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
)

// DeliveryHost is the host Cloudinary serves uploaded assets from.
const DeliveryHost = "res.cloudinary.com"

// Config describes a Cloudinary account.
type Config struct {
	CloudName    string
	APIKey       string
	APISecret    string
	Folder       string
	UploadPrefix string
	Timeout      time.Duration
}

// Host uploads and destroys images in one Cloudinary cloud.
type Host struct {
	cfg    Config
	client *sdk.Cloudinary
}

var (
	ErrNotConfigured = errors.New("cloudinary credentials are not configured")
	ErrForeignURL    = errors.New("url does not belong to this cloudinary cloud")
	ErrAPI           = errors.New("cloudinary api error")
)

var versionSegment = regexp.MustCompile(`^v\d+$`)

// New validates the account settings and prepares the SDK client.
func New(cfg Config) (*Host, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}

	client, err := sdk.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("in internal/mediahost/cloudinary/cloudinary.go/New(): error while `sdk.NewFromParams()` calling: %w", err)
	}
	if cfg.UploadPrefix != "" {
		client.Config.API.UploadPrefix = strings.TrimRight(cfg.UploadPrefix, "/")
	}

	return &Host{
		cfg:    cfg,
		client: client,
	}, nil
}

// Upload sends the data URI to Cloudinary and returns the secure delivery URL.
func (h *Host) Upload(ctx context.Context, img *mediahost.Image) (string, error) {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	result, err := h.client.Upload.Upload(ctx, img.DataURI, uploader.UploadParams{
		Folder: h.cfg.Folder,
	})
	if err != nil {
		return "", fmt.Errorf("in internal/mediahost/cloudinary/cloudinary.go/Upload(): error while `h.client.Upload.Upload()` calling: %w: %w", ErrAPI, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("%w: upload: %s", ErrAPI, result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", fmt.Errorf("%w: upload response has no secure_url", ErrAPI)
	}

	logger.Log.Debugw("image uploaded to cloudinary", "public_id", result.PublicID)

	return result.SecureURL, nil
}

// Destroy removes the asset behind imageURL. An asset that is already gone
// counts as destroyed.
func (h *Host) Destroy(ctx context.Context, imageURL string) error {
	publicID, err := h.PublicID(imageURL)
	if err != nil {
		return err
	}

	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	result, err := h.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("in internal/mediahost/cloudinary/cloudinary.go/Destroy(): error while `h.client.Upload.Destroy()` calling: %w: %w", ErrAPI, err)
	}
	if result.Error.Message != "" {
		return fmt.Errorf("%w: destroy: %s", ErrAPI, result.Error.Message)
	}

	switch result.Result {
	case "ok", "not found":
		return nil
	}

	return fmt.Errorf("%w: destroy result %q", ErrAPI, result.Result)
}

// Owns reports whether imageURL is delivered from this cloud.
func (h *Host) Owns(imageURL string) bool {
	parsed, err := url.Parse(imageURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(parsed.Host, DeliveryHost) {
		return false
	}

	return strings.HasPrefix(parsed.Path, "/"+h.cfg.CloudName+"/")
}

// PublicID extracts the public id (folder included, extension and version
// stripped) from a delivery URL.
func (h *Host) PublicID(imageURL string) (string, error) {
	if !h.Owns(imageURL) {
		return "", ErrForeignURL
	}
	parsed, _ := url.Parse(imageURL)

	_, rest, found := strings.Cut(parsed.Path, "/upload/")
	if !found || rest == "" {
		return "", ErrForeignURL
	}

	segments := strings.Split(rest, "/")
	if len(segments) > 1 && versionSegment.MatchString(segments[0]) {
		segments = segments[1:]
	}
	publicID := strings.Join(segments, "/")
	publicID = strings.TrimSuffix(publicID, path.Ext(publicID))
	if publicID == "" {
		return "", ErrForeignURL
	}

	return publicID, nil
}

func (h *Host) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, h.cfg.Timeout)
}
