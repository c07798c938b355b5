package memorystorage

import (
	"context"

	"github.com/patric-chuzhbe/bookshelf/internal/db/jsondb"
)

// MemoryStorage is the JSON database without a backing file.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: jsondb.NewInMemory(),
	}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
