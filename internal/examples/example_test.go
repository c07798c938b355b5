// Package examples shows the bookshelf API end to end, wired from the
// default configuration the way the server wires it.
package examples

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"github.com/patric-chuzhbe/bookshelf/internal/auth"
	"github.com/patric-chuzhbe/bookshelf/internal/config"
	"github.com/patric-chuzhbe/bookshelf/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bookshelf/internal/ipchecker"
	"github.com/patric-chuzhbe/bookshelf/internal/mediahost/memoryhost"
	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/router"
	"github.com/patric-chuzhbe/bookshelf/internal/service"
)

func setupServer() *httptest.Server {
	cfg, err := config.New(config.WithDisableFlagsParsing(true))
	if err != nil {
		panic(err)
	}

	db, err := memorystorage.New()
	if err != nil {
		panic(err)
	}

	var handler http.Handler
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))

	media := memoryhost.New(server.URL)
	theAuth := auth.New(db, []byte(cfg.JWTSecret), cfg.TokenTTL)
	svc := service.New(db, media, theAuth, service.WithMediaTimeout(cfg.MediaTimeout))

	checker, err := ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		panic(err)
	}

	handler = router.New(
		svc,
		theAuth,
		router.WithTrustGuard(checker),
		router.WithMaxBodyBytes(cfg.MaxBodyBytes),
		router.WithCORSOrigins(cfg.CORSAllowedOrigins),
		router.WithMediaHandler(media.Handler()),
	).Routes()

	return server
}

func call(method, url, token string, payload, result interface{}) int {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			panic(err)
		}
	}

	req, err := http.NewRequest(method, url, &body)
	if err != nil {
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			panic(err)
		}
	}

	return resp.StatusCode
}

func Example_bookFeed() {
	server := setupServer()
	defer server.Close()

	var alice models.AuthResponse
	status := call(http.MethodPost, server.URL+"/api/auth/register", "",
		models.RegisterRequest{Email: "alice@x.com", UserName: "alice", Password: "password1"}, &alice)
	fmt.Println("register:", status)

	rating := 5
	var created models.CreateBookResponse
	status = call(http.MethodPost, server.URL+"/api/books", alice.Token,
		models.CreateBookRequest{Title: "Dune", Caption: "Spice must flow", Image: "data:image/png;base64,aGVsbG8=", Rating: &rating}, &created)
	fmt.Println("create:", status, created.Message)

	var feed models.BookPage
	status = call(http.MethodGet, server.URL+"/api/books?page=1&limit=10", alice.Token, nil, &feed)
	fmt.Println("feed:", status, feed.TotalBooks, feed.TotalPages)
	fmt.Println("first:", feed.Books[0].Title, "by", feed.Books[0].User.UserName)

	var deleted models.MessageResponse
	status = call(http.MethodDelete, server.URL+"/api/books/"+created.Book.ID, alice.Token, nil, &deleted)
	fmt.Println("delete:", status, deleted.Message)

	// Output:
	// register: 201
	// create: 201 Book created successfully
	// feed: 200 1 1
	// first: Dune by alice
	// delete: 200 Book deleted successfully
}
