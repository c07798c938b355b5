package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/memoryhost"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/router"
	"github.com/patric-chuzhbe/bookshelf/internal/service"
)

const testImage = "data:image/png;base64,aGVsbG8="

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	db, err := memorystorage.New()
	require.NoError(t, err)

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(server.Close)

	media := memoryhost.New(server.URL)
	theAuth := auth.New(db, []byte("client-test-signing-key"), time.Hour)
	svc := service.New(db, media, theAuth)
	handler = router.New(svc, theAuth, router.WithMediaHandler(media.Handler())).Routes()

	return server
}

func TestClientBookFlow(t *testing.T) {
	server := setupServer(t)
	ctx := context.Background()
	client := New(server.URL, 5*time.Second)

	registered, err := client.Register(ctx, models.RegisterRequest{Email: "alice@x.com", UserName: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", registered.User.UserName)

	_, err = client.Register(ctx, models.RegisterRequest{Email: "alice@x.com", UserName: "alice2", Password: "password1"})
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "Email already exists", apiErr.Message)

	_, err = client.Login(ctx, models.LoginRequest{Email: "alice@x.com", Password: "wrong-password"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	loggedIn, err := client.Login(ctx, models.LoginRequest{Email: "alice@x.com", Password: "password1"})
	require.NoError(t, err)
	client.SetToken(loggedIn.Token)

	rating := 4
	book, err := client.CreateBook(ctx, models.CreateBookRequest{Title: "Dune", Caption: "sand", Image: testImage, Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, book.UserID)

	feed, err := client.Feed(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, feed.Books, 1)
	assert.Equal(t, "alice", feed.Books[0].User.UserName)

	mine, err := client.Mine(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, client.DeleteBook(ctx, book.ID))

	err = client.DeleteBook(ctx, book.ID)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Book not found", apiErr.Message)
}

func TestClientStaleToken(t *testing.T) {
	server := setupServer(t)
	client := New(server.URL, 5*time.Second)
	client.SetToken("not.a.token")

	_, err := client.Mine(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = client.Feed(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
