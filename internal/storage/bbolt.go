package storage

import (
	"fmt"
	"time"

	"govorilka/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	bucketAvatars = []byte("avatars")

	currentSessionKey = []byte("current")
)

// BboltStorage is the durable client-local store: it holds the serialized
// credential of the current session and a cache of fetched avatar images.
type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSession); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketAvatars); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// PutCredential stores the current session credential, replacing any
// previous one.
func (s *BboltStorage) PutCredential(cred DBCredential) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		data, err := cred.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(cred.Key(), data)
	})
}

// GetCredential returns the stored session credential.
// Returns models.ErrNotFound if no credential is stored.
func (s *BboltStorage) GetCredential() (DBCredential, error) {
	var cred DBCredential
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSession)
		data := b.Get(currentSessionKey)
		if data == nil {
			return models.ErrNotFound
		}
		return cred.UnmarshalBinary(data)
	})
	return cred, err
}

// DeleteCredential removes the stored session credential. Deleting a missing
// credential is not an error.
func (s *BboltStorage) DeleteCredential() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSession).Delete(currentSessionKey)
	})
}

// PutAvatar saves a fetched avatar image for a user.
func (s *BboltStorage) PutAvatar(avatar DBAvatar) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAvatars)
		data, err := avatar.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal avatar: %w", err)
		}
		return b.Put(avatar.Key(), data)
	})
}

// GetAvatar returns the cached avatar for a user, or models.ErrNotFound.
func (s *BboltStorage) GetAvatar(userID string) (DBAvatar, error) {
	var avatar DBAvatar
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAvatars)
		data := b.Get([]byte(userID))
		if data == nil {
			return models.ErrNotFound
		}
		return avatar.UnmarshalBinary(data)
	})
	return avatar, err
}

// DeleteAvatar removes the cached avatar for a user, if any.
func (s *BboltStorage) DeleteAvatar(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAvatars).Delete([]byte(userID))
	})
}
