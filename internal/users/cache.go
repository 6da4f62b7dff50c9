// Package users maintains the authoritative local view of all known users,
// merged from REST list results and realtime notifications.
package users

import (
	"context"
	"log/slog"
	"time"

	"govorilka/internal/models"
	"govorilka/internal/storage"

	"github.com/c-pro/geche"
	"golang.org/x/sync/errgroup"
)

const hydrateConcurrency = 4

// Record is a user enriched with the cached avatar image and the derived
// active flag. The flag is eventually consistent, refreshed in bulk on
// user_status_change notifications.
type Record struct {
	models.User
	Active     bool
	Avatar     []byte
	AvatarType string
}

type api interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetAvatar(ctx context.Context, userID string) ([]byte, string, error)
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

type avatarStore interface {
	PutAvatar(avatar storage.DBAvatar) error
	GetAvatar(userID string) (storage.DBAvatar, error)
	DeleteAvatar(userID string) error
}

// Cache is the entity cache for users, keyed by id.
type Cache struct {
	api     api
	avatars avatarStore
	users   *geche.Locker[string, Record]
}

func NewCache(api api, avatars avatarStore) *Cache {
	return &Cache{
		api:     api,
		avatars: avatars,
		users:   geche.NewLocker[string, Record](geche.NewMapCache[string, Record]()),
	}
}

// Hydrate fetches the full user list and every avatar, replacing the cache
// contents. A list fetch failure yields an empty cache and is never
// propagated upward. Avatars are fetched concurrently; the cache is fully
// merged before Hydrate returns.
func (c *Cache) Hydrate(ctx context.Context) {
	list, err := c.api.ListUsers(ctx)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		list = nil
	}

	records := make([]Record, len(list))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i, u := range list {
		i, u := i, u
		g.Go(func() error {
			blob, contentType := c.fetchAvatar(gCtx, u.ID)
			records[i] = Record{User: u, Avatar: blob, AvatarType: contentType}
			return nil
		})
	}
	// Workers never return errors, they degrade to absent avatars.
	_ = g.Wait()

	tx := c.users.Lock()
	for id := range tx.Snapshot() {
		_ = tx.Del(id)
	}
	for _, rec := range records {
		tx.Set(rec.ID, rec)
	}
	tx.Unlock()

	c.refreshActive(ctx)
}

// Apply merges a user notification into the cache. Transport failures
// silently abort the single affected merge; other entries are unaffected.
func (c *Cache) Apply(ctx context.Context, msg models.Notification) {
	switch msg.Type {
	case models.NotifyUserCreate, models.NotifyUserUpdate, models.NotifyUserAvatarUpdate:
		if msg.UserID == "" {
			return
		}

		user, err := c.api.GetUser(ctx, msg.UserID)
		if err != nil {
			slog.Warn("failed to fetch changed user", "user_id", msg.UserID, "error", err)
			return
		}
		blob, contentType := c.fetchAvatar(ctx, user.ID)

		tx := c.users.Lock()
		prev, prevErr := tx.Get(user.ID)
		rec := Record{User: user, Avatar: blob, AvatarType: contentType}
		if prevErr == nil {
			rec.Active = prev.Active
		}
		tx.Set(user.ID, rec)
		tx.Unlock()
	case models.NotifyUserDelete:
		if msg.UserID == "" {
			return
		}

		tx := c.users.Lock()
		_ = tx.Del(msg.UserID)
		tx.Unlock()
		if err := c.avatars.DeleteAvatar(msg.UserID); err != nil {
			slog.Warn("failed to drop cached avatar", "user_id", msg.UserID, "error", err)
		}
	case models.NotifyUserStatusChange:
		c.refreshActive(ctx)
	default:
		slog.Warn("unrecognized user notification", "type", msg.Type)
	}
}

// Get returns the cached record for a user id.
func (c *Cache) Get(userID string) (Record, bool) {
	tx := c.users.Lock()
	defer tx.Unlock()

	rec, err := tx.Get(userID)
	if err != nil {
		return Record{}, false
	}
	return rec, true
}

// Snapshot returns a copy of the cache contents keyed by user id.
func (c *Cache) Snapshot() map[string]Record {
	tx := c.users.Lock()
	defer tx.Unlock()
	return tx.Snapshot()
}

func (c *Cache) Len() int {
	tx := c.users.Lock()
	defer tx.Unlock()
	return tx.Len()
}

// refreshActive re-fetches the currently-active id list and sets every
// cached user's flag by membership. Users not in the cache are unaffected.
func (c *Cache) refreshActive(ctx context.Context) {
	ids, err := c.api.ListActiveUserIDs(ctx)
	if err != nil {
		slog.Warn("failed to list active user ids", "error", err)
		return
	}

	active := make(map[string]bool, len(ids))
	for _, id := range ids {
		active[id] = true
	}

	tx := c.users.Lock()
	defer tx.Unlock()
	for id, rec := range tx.Snapshot() {
		rec.Active = active[id]
		tx.Set(id, rec)
	}
}

// fetchAvatar resolves a user's avatar to image bytes, falling back to the
// warm copy in local storage. Failures (including "no avatar set") resolve
// to an absent image, never an error.
func (c *Cache) fetchAvatar(ctx context.Context, userID string) ([]byte, string) {
	blob, contentType, err := c.api.GetAvatar(ctx, userID)
	if err == nil && len(blob) > 0 {
		rec := storage.DBAvatar{
			UserID:      userID,
			ContentType: contentType,
			Blob:        blob,
			FetchedAt:   time.Now().UnixMilli(),
		}
		if err := c.avatars.PutAvatar(rec); err != nil {
			slog.Warn("failed to cache avatar", "user_id", userID, "error", err)
		}
		return blob, contentType
	}

	cached, cacheErr := c.avatars.GetAvatar(userID)
	if cacheErr == nil {
		return cached.Blob, cached.ContentType
	}
	return nil, ""
}
