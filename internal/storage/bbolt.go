package storage

import (
	"fmt"
	"time"

	"chatsync/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
)

type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// SaveSession stores the session token, replacing any previous one.
func (s *BboltStorage) SaveSession(username, token string) error {
	return s.put(&DBSession{
		Username: username,
		Token:    token,
		SavedAt:  s.now().Unix(),
	})
}

// LoadSession returns the stored session or models.ErrNotFound.
func (s *BboltStorage) LoadSession() (username, token string, err error) {
	var dbSession DBSession
	err = s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSession).Get(dbSession.Key())
		if data == nil {
			return models.ErrNotFound
		}
		if err := dbSession.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return dbSession.Username, dbSession.Token, nil
}

// DeleteSession forgets the stored token. Deleting a missing session is not an error.
func (s *BboltStorage) DeleteSession() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(currentSessionKey)
	})
}

func (s *BboltStorage) put(item Storeable) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := item.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %w", item, err)
		}
		return tx.Bucket(bucketSession).Put(item.Key(), data)
	})
}
