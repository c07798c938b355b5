// Package session keeps the signed-in user of bookshelfctl in a local bbolt file.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/patric-chuzhbe/bookshelf/internal/models"
)

var (
	bucketSession = []byte("session")
	currentKey    = []byte("current")
)

var ErrNoSession = errors.New("not logged in")

// Session is what the server returned on register or login.
type Session struct {
	Token string          `json:"token"`
	User  models.AuthUser `json:"user"`
}

type Store struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the session file at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("in internal/client/session/session.go/Open(): error while `bbolt.Open()` calling: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("in internal/client/session/session.go/Open(): error while `tx.CreateBucketIfNotExists()` calling: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Store) Save(session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("in internal/client/session/session.go/Save(): error while `json.Marshal()` calling: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Put(currentKey, data)
	})
}

// Load returns ErrNoSession when nobody is logged in.
func (s *Store) Load() (*Session, error) {
	var session *Session

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(currentKey)
		if data == nil {
			return ErrNoSession
		}

		session = &Session{}
		if err := json.Unmarshal(data, session); err != nil {
			return fmt.Errorf("in internal/client/session/session.go/Load(): error while `json.Unmarshal()` calling: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Clear forgets the current session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(currentKey)
	})
}
