package memorystorage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
	"github.com/patric-chuzhbe/bookshelf/internal/user"
)

func Test(t *testing.T) {
	t.Run("The base memorystorage package test", func(t *testing.T) {
		theStorage, err := New()
		assert.NoError(t, err, "The memorystorage.New() should not return error")

		userID, err := theStorage.CreateUser(context.Background(), &user.User{Email: "a@x.com", UserName: "alice"})
		assert.NoError(t, err, "The `theStorage.CreateUser()` should not return error")

		err = theStorage.InsertBook(context.Background(), &models.Book{Title: "Dune", Rating: 5, UserID: userID})
		assert.NoError(t, err, "The `theStorage.InsertBook()` should not return error")

		books, err := theStorage.GetBooksByOwner(context.Background(), userID)
		assert.NoError(t, err)
		assert.Len(t, books, 1)

		err = theStorage.Ping(context.Background())
		assert.NoError(t, err, "The memorystorage.Ping() should not return error")

		err = theStorage.Close()
		assert.NoError(t, err, "The memorystorage.Close() should not return error")
	})
}
