// Package mediahost holds what the image-hosting backends share: the decoded
// form of an uploaded cover image and the data URI parser that produces it.
package mediahost

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

// Image is a decoded inline image ready to be handed to a media host.
type Image struct {
	// ContentType is the MIME type announced by the data URI, e.g. image/png.
	ContentType string

	// Data is the decoded payload.
	Data []byte

	// DataURI is the original string, kept for hosts that accept it verbatim.
	DataURI string
}

// ErrInvalidImage is returned when the payload is not a base64 image data URI.
var ErrInvalidImage = errors.New("image must be a base64 encoded data URI")

const (
	dataURIScheme = "data:"
	base64Marker  = ";base64"
)

// ParseDataURI decodes strings of the form data:image/<type>;base64,<payload>.
func ParseDataURI(raw string) (*Image, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, dataURIScheme) {
		return nil, ErrInvalidImage
	}

	header, payload, found := strings.Cut(raw[len(dataURIScheme):], ",")
	if !found || payload == "" {
		return nil, ErrInvalidImage
	}

	if !strings.HasSuffix(header, base64Marker) {
		return nil, ErrInvalidImage
	}
	contentType := strings.ToLower(strings.TrimSuffix(header, base64Marker))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrInvalidImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidImage, err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}

	return &Image{
		ContentType: contentType,
		Data:        data,
		DataURI:     raw,
	}, nil
}

// Extension picks a file extension for the image, defaulting to .bin.
func (i *Image) Extension() string {
	switch i.ContentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}

	extensions, err := mime.ExtensionsByType(i.ContentType)
	if err != nil || len(extensions) == 0 {
		return ".bin"
	}

	return extensions[0]
}
