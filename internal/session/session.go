// Package session owns the authenticated identity and its credential,
// persisted in the client-local store so it survives restarts.
package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"govorilka/internal/models"
	"govorilka/internal/storage"
)

var ErrNoCredential = errors.New("no valid credential")

// Store holds the current credential. The stored record's presence plus
// non-expiry is the sole login-state source of truth; an expired credential
// is treated as absent and purged on read.
type Store struct {
	db  *storage.BboltStorage
	now func() time.Time

	mu      sync.RWMutex
	current *models.Credential
	onClear []func()
}

func NewStore(db *storage.BboltStorage) *Store {
	s := &Store{
		db:  db,
		now: time.Now,
	}
	s.restore()
	return s
}

// OnClear registers a hook invoked whenever the credential is cleared
// (logout, expiry, auth-rejected request).
func (s *Store) OnClear(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClear = append(s.onClear, fn)
}

func (s *Store) restore() {
	rec, err := s.db.GetCredential()
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			slog.Error("failed to restore session", "error", err)
		}
		return
	}

	cred := fromRecord(rec)
	if !cred.Valid(s.now()) {
		_ = s.db.DeleteCredential()
		return
	}
	s.current = cred
}

// Set stores a new credential, persisting it for the next start.
func (s *Store) Set(cred models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = &cred
	if err := s.db.PutCredential(toRecord(&cred)); err != nil {
		return err
	}
	return nil
}

// Current returns the credential, or nil if none is stored or it has
// expired. An expired credential is purged.
func (s *Store) Current() *models.Credential {
	s.mu.RLock()
	cred := s.current
	s.mu.RUnlock()

	if cred == nil {
		return nil
	}
	if !cred.Valid(s.now()) {
		s.Clear()
		return nil
	}

	// Copy, so callers cannot mutate the stored value.
	out := *cred
	return &out
}

// Token returns the access token of the current credential, or
// ErrNoCredential if there is none.
func (s *Store) Token() (string, error) {
	cred := s.Current()
	if cred == nil {
		return "", ErrNoCredential
	}
	return cred.AccessToken, nil
}

// UserID returns the id of the authenticated user, or empty if logged out.
func (s *Store) UserID() string {
	cred := s.Current()
	if cred == nil {
		return ""
	}
	return cred.ID
}

// Clear destroys the credential and notifies the clear hooks.
func (s *Store) Clear() {
	s.mu.Lock()
	wasSet := s.current != nil
	s.current = nil
	hooks := s.onClear
	s.mu.Unlock()

	if err := s.db.DeleteCredential(); err != nil {
		slog.Error("failed to delete stored credential", "error", err)
	}

	if wasSet {
		for _, fn := range hooks {
			fn()
		}
	}
}

// MergeProfile merges updated profile fields of the same user into the
// credential, keeping the token. Updates for other user ids are ignored.
func (s *Store) MergeProfile(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.current.ID != user.ID {
		return
	}

	cred := *s.current
	if user.Username != "" {
		cred.Username = user.Username
	}
	cred.FullName = user.FullName
	if user.CreatedAt != nil {
		cred.CreatedAt = user.CreatedAt
	}
	if user.UpdatedAt != nil {
		cred.UpdatedAt = user.UpdatedAt
	}
	s.current = &cred

	if err := s.db.PutCredential(toRecord(&cred)); err != nil {
		slog.Error("failed to persist updated credential", "error", err)
	}
}

func toRecord(cred *models.Credential) storage.DBCredential {
	rec := storage.DBCredential{
		ID:          cred.ID,
		Username:    cred.Username,
		FullName:    cred.FullName,
		AccessToken: cred.AccessToken,
	}
	if cred.CreatedAt != nil {
		rec.CreatedAt = cred.CreatedAt.UnixMilli()
	}
	if cred.AccessTokenExpiresAt != nil {
		rec.ExpiresAt = cred.AccessTokenExpiresAt.UnixMilli()
	}
	return rec
}

func fromRecord(rec storage.DBCredential) *models.Credential {
	cred := &models.Credential{
		User: models.User{
			ID:       rec.ID,
			Username: rec.Username,
			FullName: rec.FullName,
		},
		AccessToken: rec.AccessToken,
	}
	if rec.CreatedAt != 0 {
		t := time.UnixMilli(rec.CreatedAt)
		cred.CreatedAt = &t
	}
	if rec.ExpiresAt != 0 {
		t := time.UnixMilli(rec.ExpiresAt)
		cred.AccessTokenExpiresAt = &t
	}
	return cred
}
