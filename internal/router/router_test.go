package router

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookshelf/internal/ipchecker"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/memoryhost"
	"github.com/patric-chuzhbe/bookshelf/internal/metrics"
	"github.com/patric-chuzhbe/bookshelf/internal/mockstorage"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/ratelimit"
	"github.com/patric-chuzhbe/bookshelf/internal/service"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

const (
	testSigningKey = "router-test-signing-key"
	testImage      = "data:image/png;base64,aGVsbG8="
)

type testStorage interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, usr *user.User) (string, error)
	GetUserByID(ctx context.Context, userID string) (*user.User, error)
	FindUserByEmail(ctx context.Context, email string) (*user.User, bool, error)
	FindUserByUserName(ctx context.Context, userName string) (*user.User, bool, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error)
	GetNumberOfUsers(ctx context.Context) (int64, error)
	InsertBook(ctx context.Context, book *models.Book) error
	GetBooksPage(ctx context.Context, skip, limit int) ([]models.Book, error)
	CountBooks(ctx context.Context) (int64, error)
	GetBooksByOwner(ctx context.Context, userID string) ([]models.Book, error)
	FindBookByID(ctx context.Context, bookID string) (*models.Book, bool, error)
	DeleteBook(ctx context.Context, bookID string) (bool, error)
}

type testEnv struct {
	server *httptest.Server
	db     testStorage
	media  *memoryhost.Host
	auth   *auth.Auth
}

type testInitOption func(*testInitOptions)

type testInitOptions struct {
	mockStorage   testStorage
	trustedSubnet string
	authLimiter   ratelimit.Limiter
	maxBodyBytes  int64
	corsOrigins   []string
}

func withMockStorage(db testStorage) testInitOption {
	return func(options *testInitOptions) {
		options.mockStorage = db
	}
}

func withTrustedSubnet(cidr string) testInitOption {
	return func(options *testInitOptions) {
		options.trustedSubnet = cidr
	}
}

func withAuthLimiter(limiter ratelimit.Limiter) testInitOption {
	return func(options *testInitOptions) {
		options.authLimiter = limiter
	}
}

func withMaxBodyBytes(maxBodyBytes int64) testInitOption {
	return func(options *testInitOptions) {
		options.maxBodyBytes = maxBodyBytes
	}
}

func withCORSOrigins(origins ...string) testInitOption {
	return func(options *testInitOptions) {
		options.corsOrigins = origins
	}
}

func setupTestRouter(optionsProto ...testInitOption) *testEnv {
	options := &testInitOptions{maxBodyBytes: defaultMaxBodyBytes}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var db testStorage = options.mockStorage
	if db == nil {
		memory, err := memorystorage.New()
		if err != nil {
			panic(err)
		}
		db = memory
	}

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))

	media := memoryhost.New(server.URL)
	theAuth := auth.New(db, []byte(testSigningKey), time.Hour)
	svc := service.New(db, media, theAuth, service.WithStoreTimeout(time.Second), service.WithMediaTimeout(time.Second))

	checker, err := ipchecker.New(options.trustedSubnet)
	if err != nil {
		panic(err)
	}

	routerOptions := []InitOption{
		WithTrustGuard(checker),
		WithMetrics(metrics.New()),
		WithMediaHandler(media.Handler()),
		WithMaxBodyBytes(options.maxBodyBytes),
	}
	if options.authLimiter != nil {
		routerOptions = append(routerOptions, WithAuthLimiter(options.authLimiter))
	}
	if options.corsOrigins != nil {
		routerOptions = append(routerOptions, WithCORSOrigins(options.corsOrigins))
	}

	handler = New(svc, theAuth, routerOptions...).Routes()

	return &testEnv{server: server, db: db, media: media, auth: theAuth}
}

func (env *testEnv) register(t *testing.T, userName string) *models.AuthResponse {
	t.Helper()
	var result models.AuthResponse
	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetBody(models.RegisterRequest{Email: userName + "@x.com", UserName: userName, Password: "password1"}).
		SetResult(&result).
		Post(env.server.URL + "/api/auth/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode(), resp.String())

	return &result
}

func (env *testEnv) postBook(t *testing.T, token, title string, rating int) *models.Book {
	t.Helper()
	var result models.CreateBookResponse
	resp, err := resty.New().R().
		SetAuthToken(token).
		SetBody(models.CreateBookRequest{Title: title, Caption: "about " + title, Image: testImage, Rating: &rating}).
		SetResult(&result).
		Post(env.server.URL + "/api/books")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode(), resp.String())

	return result.Book
}

func gzipString(input string) ([]byte, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)

	if _, err := gzipWriter.Write([]byte(input)); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func TestPostApiauthregister(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	type tRequest struct {
		body string
	}
	type tExpectedResponse struct {
		code int
		body *regexp.Regexp
	}
	type tTestCase struct {
		name             string
		request          tRequest
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:    "positive",
			request: tRequest{`{"email":"alice@x.com","userName":"alice","password":"password1"}`},
			expectedResponse: tExpectedResponse{
				http.StatusCreated,
				regexp.MustCompile(`"token":"[\w-]+\.[\w-]+\.[\w-]+".*"userName":"alice".*"profileImage":"https://api\.dicebear\.com/9\.x/big-ears/svg\?seed=alice"`),
			},
		},
		{
			name:             "duplicate email",
			request:          tRequest{`{"email":"ALICE@x.com","userName":"alice2","password":"password1"}`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`^\{"message":"Email already exists"\}$`)},
		},
		{
			name:             "duplicate user name",
			request:          tRequest{`{"email":"other@x.com","userName":"alice","password":"password1"}`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`^\{"message":"Username already exists"\}$`)},
		},
		{
			name:             "missing field",
			request:          tRequest{`{"email":"bob@x.com","password":"password1"}`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"All fields are required"`)},
		},
		{
			name:             "short password",
			request:          tRequest{`{"email":"bob@x.com","userName":"bob","password":"short"}`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"Password must be at least 8 characters long"`)},
		},
		{
			name:             "short user name",
			request:          tRequest{`{"email":"bob@x.com","userName":"bo","password":"password1"}`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"Username must be at least 3 characters long"`)},
		},
		{
			name:             "malformed json",
			request:          tRequest{`{"email":`},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"Invalid request body"`)},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetHeader("Content-Type", "application/json").
				SetBody(testCase.request.body).
				Post(env.server.URL + "/api/auth/register")
			require.NoError(t, err)

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.Regexp(t, testCase.expectedResponse.body, resp.String())
		})
	}
}

func TestPostApiauthregisterForGzip(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	body, err := gzipString(`{"email":"gzip@x.com","userName":"gzipper","password":"password1"}`)
	require.NoError(t, err)

	resp, err := resty.New().R().
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "gzip").
		SetBody(body).
		Post(env.server.URL + "/api/auth/register")
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.StatusCode(), resp.String())
	assert.Contains(t, resp.String(), `"userName":"gzipper"`)
}

func TestPostApiauthlogin(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	registered := env.register(t, "alice")

	type tExpectedResponse struct {
		code int
		body *regexp.Regexp
	}
	type tTestCase struct {
		name             string
		request          models.LoginRequest
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:    "positive",
			request: models.LoginRequest{Email: "Alice@X.com", Password: "password1"},
			expectedResponse: tExpectedResponse{
				http.StatusOK,
				regexp.MustCompile(`"_id":"` + regexp.QuoteMeta(registered.User.ID) + `"`),
			},
		},
		{
			name:             "wrong password",
			request:          models.LoginRequest{Email: "alice@x.com", Password: "password2"},
			expectedResponse: tExpectedResponse{http.StatusUnauthorized, regexp.MustCompile(`^\{"message":"Invalid credentials"\}$`)},
		},
		{
			name:             "unknown email",
			request:          models.LoginRequest{Email: "nobody@x.com", Password: "password1"},
			expectedResponse: tExpectedResponse{http.StatusUnauthorized, regexp.MustCompile(`^\{"message":"Invalid credentials"\}$`)},
		},
		{
			name:             "missing password",
			request:          models.LoginRequest{Email: "alice@x.com"},
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`^\{"message":"All fields are required"\}$`)},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetBody(testCase.request).
				Post(env.server.URL + "/api/auth/login")
			require.NoError(t, err)

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.Regexp(t, testCase.expectedResponse.body, resp.String())
		})
	}
}

func TestBooksRoutesRequireToken(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	type tTestCase struct {
		name   string
		method string
		path   string
		token  string
	}
	testCases := []tTestCase{
		{name: "feed without token", method: http.MethodGet, path: "/api/books"},
		{name: "mine with garbage token", method: http.MethodGet, path: "/api/books/mine", token: "garbage"},
		{name: "create without token", method: http.MethodPost, path: "/api/books"},
		{name: "delete without token", method: http.MethodDelete, path: "/api/books/123"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := resty.New().R()
			if testCase.token != "" {
				request.SetAuthToken(testCase.token)
			}
			resp, err := request.Execute(testCase.method, env.server.URL+testCase.path)
			require.NoError(t, err)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
			assert.JSONEq(t, `{"message":"Unauthorized"}`, resp.String())
		})
	}
}

func TestBookLifecycle(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	book := env.postBook(t, alice.Token, "Dune", 5)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, alice.User.ID, book.UserID)
	assert.True(t, strings.HasPrefix(book.Image, env.server.URL+"/media/"))
	assert.Equal(t, 1, env.media.Len())

	image, err := resty.New().R().Get(book.Image)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, image.StatusCode())
	assert.Equal(t, "image/png", image.Header().Get("Content-Type"))
	assert.Equal(t, "hello", image.String())

	var feed models.BookPage
	resp, err := resty.New().R().
		SetAuthToken(bob.Token).
		SetResult(&feed).
		Get(env.server.URL + "/api/books?page=1&limit=10")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	require.Len(t, feed.Books, 1)
	assert.Equal(t, "Dune", feed.Books[0].Title)
	assert.Equal(t, alice.User.ID, feed.Books[0].User.ID)
	assert.Equal(t, "alice", feed.Books[0].User.UserName)
	assert.Equal(t, alice.User.ProfileImage, feed.Books[0].User.ProfileImage)
	assert.Equal(t, int64(1), feed.TotalBooks)
	assert.Equal(t, int64(1), feed.TotalPages)
	assert.Equal(t, 1, feed.CurrentPage)

	for _, path := range []string{"/api/books/mine", "/api/books/user"} {
		var mine []models.Book
		resp, err = resty.New().R().SetAuthToken(alice.Token).SetResult(&mine).Get(env.server.URL + path)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())
		require.Len(t, mine, 1, path)
		assert.Equal(t, alice.User.ID, mine[0].UserID)
	}

	resp, err = resty.New().R().SetAuthToken(bob.Token).Get(env.server.URL + "/api/books/mine")
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.String())

	resp, err = resty.New().R().SetAuthToken(bob.Token).Delete(env.server.URL + "/api/books/" + book.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Unauthorized"}`, resp.String())
	assert.Equal(t, 1, env.media.Len())

	resp, err = resty.New().R().SetAuthToken(alice.Token).Delete(env.server.URL + "/api/books/" + book.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Book deleted successfully"}`, resp.String())
	assert.Equal(t, 0, env.media.Len())

	resp, err = resty.New().R().SetAuthToken(alice.Token).Delete(env.server.URL + "/api/books/" + book.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Book not found"}`, resp.String())
}

func TestPostApibooksValidation(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	alice := env.register(t, "alice")

	type tExpectedResponse struct {
		code    int
		message string
	}
	type tTestCase struct {
		name             string
		body             string
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "missing title",
			body:             `{"caption":"c","image":"` + testImage + `","rating":4}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, "All fields are required"},
		},
		{
			name:             "missing rating",
			body:             `{"title":"t","caption":"c","image":"` + testImage + `"}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, "All fields are required"},
		},
		{
			name:             "rating out of range",
			body:             `{"title":"t","caption":"c","image":"` + testImage + `","rating":6}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, "Rating must be between 1 and 5"},
		},
		{
			name:             "image is not a data uri",
			body:             `{"title":"t","caption":"c","image":"https://example.com/a.png","rating":3}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, "Image must be a base64 encoded data URI"},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().
				SetAuthToken(alice.Token).
				SetHeader("Content-Type", "application/json").
				SetBody(testCase.body).
				Post(env.server.URL + "/api/books")
			require.NoError(t, err)

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.JSONEq(t, fmt.Sprintf(`{"message":%q}`, testCase.expectedResponse.message), resp.String())
		})
	}

	assert.Equal(t, 0, env.media.Len())
}

func TestPostApibooksBodyTooLarge(t *testing.T) {
	env := setupTestRouter(withMaxBodyBytes(256))
	defer env.server.Close()

	alice := env.register(t, "alice")

	rating := 4
	resp, err := resty.New().R().
		SetAuthToken(alice.Token).
		SetBody(models.CreateBookRequest{
			Title:   "Big",
			Caption: "big",
			Image:   "data:image/png;base64," + strings.Repeat("QUFB", 200),
			Rating:  &rating,
		}).
		Post(env.server.URL + "/api/books")
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode())
	assert.Equal(t, 0, env.media.Len())
}

func TestPostApibooksGzipBodyTooLarge(t *testing.T) {
	env := setupTestRouter(withMaxBodyBytes(64 << 10))
	defer env.server.Close()

	alice := env.register(t, "alice")

	payload, err := json.Marshal(map[string]interface{}{
		"title":   "Bomb",
		"caption": "bomb",
		"image":   "data:image/png;base64," + strings.Repeat("QUFB", 2<<20),
		"rating":  4,
	})
	require.NoError(t, err)
	body, err := gzipString(string(payload))
	require.NoError(t, err)
	require.Less(t, len(body), 64<<10)

	resp, err := resty.New().R().
		SetAuthToken(alice.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Content-Encoding", "gzip").
		SetBody(body).
		Post(env.server.URL + "/api/books")
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode(), resp.String())
	assert.Equal(t, 0, env.media.Len())

	total, err := env.db.CountBooks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestGetApibooksPagination(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	alice := env.register(t, "alice")
	for i := 1; i <= 3; i++ {
		env.postBook(t, alice.Token, fmt.Sprintf("Book %d", i), 3)
	}

	type tExpectedResponse struct {
		code  int
		body  *regexp.Regexp
		books int
	}
	type tTestCase struct {
		name             string
		query            string
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "defaults",
			query:            "",
			expectedResponse: tExpectedResponse{http.StatusOK, regexp.MustCompile(`"currentPage":1,"totalBooks":3,"totalPages":1`), 3},
		},
		{
			name:             "second page of two",
			query:            "?page=2&limit=2",
			expectedResponse: tExpectedResponse{http.StatusOK, regexp.MustCompile(`"title":"Book 1".*"currentPage":2,"totalBooks":3,"totalPages":2`), 1},
		},
		{
			name:             "past the end",
			query:            "?page=5&limit=2",
			expectedResponse: tExpectedResponse{http.StatusOK, regexp.MustCompile(`^\{"books":\[\],`), 0},
		},
		{
			name:             "zero page",
			query:            "?page=0",
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"page must be a positive integer"`), 0},
		},
		{
			name:             "non-integer limit",
			query:            "?limit=ten",
			expectedResponse: tExpectedResponse{http.StatusBadRequest, regexp.MustCompile(`"limit must be a positive integer"`), 0},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().SetAuthToken(alice.Token).Get(env.server.URL + "/api/books" + testCase.query)
			require.NoError(t, err)

			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.Regexp(t, testCase.expectedResponse.body, resp.String())

			if testCase.expectedResponse.code == http.StatusOK {
				var page models.BookPage
				require.NoError(t, json.Unmarshal(resp.Body(), &page))
				assert.Len(t, page.Books, testCase.expectedResponse.books)
			}
		})
	}
}

func TestDeleteApibooksidStorageFailure(t *testing.T) {
	db := &mockstorage.StorageMock{}
	alice := &user.User{ID: "u-alice", UserName: "alice", Email: "alice@x.com"}
	db.On("GetUserByID", mock.Anything, alice.ID).Return(alice, nil)
	db.On("FindBookByID", mock.Anything, "b1").Return(nil, false, errors.New("connection reset"))

	env := setupTestRouter(withMockStorage(db))
	defer env.server.Close()

	token, err := env.auth.IssueToken(alice.ID)
	require.NoError(t, err)

	resp, err := resty.New().R().SetAuthToken(token).Delete(env.server.URL + "/api/books/b1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Internal server error"}`, resp.String())
	db.AssertExpectations(t)
}

func TestGetPing(t *testing.T) {
	type tTestCase struct {
		name         string
		pingErr      error
		expectedCode int
	}
	testCases := []tTestCase{
		{name: "store answers", pingErr: nil, expectedCode: http.StatusOK},
		{name: "store is down", pingErr: errors.New("dial tcp: refused"), expectedCode: http.StatusInternalServerError},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			db := &mockstorage.StorageMock{}
			db.On("Ping", mock.Anything).Return(testCase.pingErr)

			env := setupTestRouter(withMockStorage(db))
			defer env.server.Close()

			resp, err := resty.New().R().Get(env.server.URL + "/ping")
			require.NoError(t, err)
			assert.Equal(t, testCase.expectedCode, resp.StatusCode())
		})
	}
}

func TestGetApiinternalstats(t *testing.T) {
	type tTestCase struct {
		name          string
		trustedSubnet string
		clientIP      string
		expectedCode  int
		expectedBody  string
	}
	testCases := []tTestCase{
		{name: "trusted client", trustedSubnet: "10.0.0.0/8", clientIP: "10.1.2.3", expectedCode: http.StatusOK, expectedBody: `{"users":1,"books":0}`},
		{name: "untrusted client", trustedSubnet: "10.0.0.0/8", clientIP: "192.168.0.1", expectedCode: http.StatusForbidden, expectedBody: `{"message":"Forbidden"}`},
		{name: "no trusted subnet", trustedSubnet: "", clientIP: "10.1.2.3", expectedCode: http.StatusForbidden, expectedBody: `{"message":"Forbidden"}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			env := setupTestRouter(withTrustedSubnet(testCase.trustedSubnet))
			defer env.server.Close()
			env.register(t, "alice")

			resp, err := resty.New().R().
				SetHeader("X-Real-IP", testCase.clientIP).
				Get(env.server.URL + "/api/internal/stats")
			require.NoError(t, err)

			assert.Equal(t, testCase.expectedCode, resp.StatusCode())
			assert.JSONEq(t, testCase.expectedBody, resp.String())
		})
	}
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	env := setupTestRouter(withAuthLimiter(ratelimit.NewMemoryLimiter(2, time.Minute)))
	defer env.server.Close()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := resty.New().R().
			SetBody(models.LoginRequest{Email: "nobody@x.com", Password: "password1"}).
			Post(env.server.URL + "/api/auth/login")
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode())
	}

	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestGetMetrics(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	env.register(t, "alice")

	resp, err := resty.New().R().Get(env.server.URL + "/metrics")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, resp.String(), `bookshelf_api_http_requests_total{method="POST",route="/api/auth/register",status="201"} 1`)
}

func TestUnknownRoute(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	resp, err := resty.New().R().Get(env.server.URL + "/nope")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.JSONEq(t, `{"message":"Not found"}`, resp.String())
}

func TestCORSPreflight(t *testing.T) {
	type tExpectedResponse struct {
		allowOrigin string
	}
	type tTestCase struct {
		name             string
		corsOrigins      []string
		origin           string
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "any origin by default",
			origin:           "http://localhost:8081",
			expectedResponse: tExpectedResponse{allowOrigin: "*"},
		},
		{
			name:             "listed origin",
			corsOrigins:      []string{"https://app.example.com"},
			origin:           "https://app.example.com",
			expectedResponse: tExpectedResponse{allowOrigin: "https://app.example.com"},
		},
		{
			name:             "unlisted origin",
			corsOrigins:      []string{"https://app.example.com"},
			origin:           "https://evil.example.com",
			expectedResponse: tExpectedResponse{allowOrigin: ""},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			env := setupTestRouter(withCORSOrigins(testCase.corsOrigins...))
			defer env.server.Close()

			resp, err := resty.New().R().
				SetHeader("Origin", testCase.origin).
				SetHeader("Access-Control-Request-Method", http.MethodPost).
				SetHeader("Access-Control-Request-Headers", "Authorization, Content-Type").
				Options(env.server.URL + "/api/books")
			require.NoError(t, err)

			assert.Less(t, resp.StatusCode(), http.StatusMultipleChoices)
			assert.Equal(t, testCase.expectedResponse.allowOrigin, resp.Header().Get("Access-Control-Allow-Origin"))
			if testCase.expectedResponse.allowOrigin != "" {
				assert.Equal(t, http.MethodPost, resp.Header().Get("Access-Control-Allow-Methods"))
				assert.NotEmpty(t, resp.Header().Get("Access-Control-Allow-Headers"))
			}
		})
	}
}

func TestCORSSimpleRequest(t *testing.T) {
	env := setupTestRouter()
	defer env.server.Close()

	resp, err := resty.New().R().
		SetHeader("Origin", "http://localhost:8081").
		Get(env.server.URL + "/api/books")
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}
