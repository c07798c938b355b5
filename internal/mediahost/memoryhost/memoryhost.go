// Package memoryhost keeps uploaded images in process memory and serves them
// back over HTTP. It backs local runs and tests where no cloud host is set up.
package memoryhost

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
)

// RoutePrefix is where Handler expects to be mounted.
const RoutePrefix = "/media"

type object struct {
	contentType string
	data        []byte
}

// Host is a map-backed media host.
type Host struct {
	mu      sync.RWMutex
	objects map[string]object
	baseURL string
}

var ErrForeignURL = errors.New("url does not belong to the in-memory media host")

// New creates a host whose URLs start with baseURL + RoutePrefix.
func New(baseURL string) *Host {
	return &Host{
		objects: make(map[string]object),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (h *Host) Upload(ctx context.Context, img *mediahost.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := uuid.NewString() + img.Extension()
	data := make([]byte, len(img.Data))
	copy(data, img.Data)

	h.mu.Lock()
	h.objects[key] = object{contentType: img.ContentType, data: data}
	h.mu.Unlock()

	return h.baseURL + RoutePrefix + "/" + key, nil
}

func (h *Host) Destroy(ctx context.Context, imageURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := h.key(imageURL)
	if err != nil {
		return err
	}

	h.mu.Lock()
	delete(h.objects, key)
	h.mu.Unlock()

	return nil
}

func (h *Host) Owns(imageURL string) bool {
	_, err := h.key(imageURL)
	return err == nil
}

// Len returns the number of stored images.
func (h *Host) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.objects)
}

// Handler serves GET {RoutePrefix}/{key}.
func (h *Host) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get(RoutePrefix+"/{key}", func(response http.ResponseWriter, request *http.Request) {
		key := chi.URLParam(request, "key")

		h.mu.RLock()
		obj, ok := h.objects[key]
		h.mu.RUnlock()
		if !ok {
			http.NotFound(response, request)
			return
		}

		response.Header().Set("Content-Type", obj.contentType)
		response.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		response.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		response.WriteHeader(http.StatusOK)
		_, _ = response.Write(obj.data)
	})

	return router
}

func (h *Host) key(imageURL string) (string, error) {
	key, found := strings.CutPrefix(imageURL, h.baseURL+RoutePrefix+"/")
	if !found || key == "" || strings.Contains(key, "/") {
		return "", ErrForeignURL
	}

	return key, nil
}
