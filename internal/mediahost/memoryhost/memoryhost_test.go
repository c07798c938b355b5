package memoryhost

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookshelf/internal/mediahost"
)

func TestUploadServeDestroy(t *testing.T) {
	host := New("http://localhost:3000/")
	ctx := context.Background()

	imageURL, err := host.Upload(ctx, &mediahost.Image{ContentType: "image/png", Data: []byte("hello")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(imageURL, "http://localhost:3000/media/"))
	assert.True(t, strings.HasSuffix(imageURL, ".png"))
	assert.True(t, host.Owns(imageURL))
	assert.Equal(t, 1, host.Len())

	path := strings.TrimPrefix(imageURL, "http://localhost:3000")
	rec := httptest.NewRecorder()
	host.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "hello", rec.Body.String())

	require.NoError(t, host.Destroy(ctx, imageURL))
	assert.Equal(t, 0, host.Len())

	rec = httptest.NewRecorder()
	host.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForeignURL(t *testing.T) {
	host := New("http://localhost:3000")

	assert.False(t, host.Owns("https://res.cloudinary.com/demo/image/upload/abc.png"))
	assert.ErrorIs(t, host.Destroy(context.Background(), "http://localhost:3000/media/"), ErrForeignURL)
}

func TestCanceledContext(t *testing.T) {
	host := New("http://localhost:3000")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := host.Upload(ctx, &mediahost.Image{ContentType: "image/png", Data: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, host.Len())
}
