package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
)

type ScheduleRepository interface {
	Create(ctx context.Context, sp *models.ScheduledPost) error
	GetByID(ctx context.Context, platform models.Platform, userID, id string) (*models.ScheduledPost, error)
	ListDue(ctx context.Context, platform models.Platform, now time.Time) ([]*models.ScheduledPost, error)
	ListByUserID(ctx context.Context, platform models.Platform, userID string) ([]*models.ScheduledPost, error)
	Update(ctx context.Context, sp *models.ScheduledPost) error
	Remove(ctx context.Context, sp *models.ScheduledPost) error
}

type scheduleRepository struct {
	store storage.BlobStore
	locks *keyLocks
}

func NewScheduleRepository(store storage.BlobStore) ScheduleRepository {
	return &scheduleRepository{store: store, locks: newKeyLocks()}
}

func ScheduleKey(platform models.Platform, userID, id string) string {
	return fmt.Sprintf("scheduled/%s/%s/%s.json", platform, userID, id)
}

func ImageKey(platform models.Platform, userID, id string, format models.ImageFormat) string {
	return fmt.Sprintf("scheduled/%s/%s/%s_image.%s", platform, userID, id, format.Extension())
}

func (r *scheduleRepository) Create(ctx context.Context, sp *models.ScheduledPost) error {
	key := ScheduleKey(sp.Platform, sp.UserID, sp.ID)

	unlock := r.locks.lock(key)
	defer unlock()

	if _, err := r.store.Get(ctx, key); err == nil {
		return fmt.Errorf("schedule %s: %w", sp.ID, models.ErrAlreadyExists)
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	sp.Version = 1
	return r.put(ctx, key, sp)
}

func (r *scheduleRepository) GetByID(ctx context.Context, platform models.Platform, userID, id string) (*models.ScheduledPost, error) {
	return r.get(ctx, ScheduleKey(platform, userID, id))
}

func (r *scheduleRepository) ListDue(ctx context.Context, platform models.Platform, now time.Time) ([]*models.ScheduledPost, error) {
	posts, err := r.list(ctx, fmt.Sprintf("scheduled/%s/", platform))
	if err != nil {
		return nil, err
	}

	due := posts[:0]
	for _, sp := range posts {
		if sp.IsDue(now) {
			due = append(due, sp)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].ScheduledTime.Equal(due[j].ScheduledTime) {
			return due[i].ScheduledTime.Before(due[j].ScheduledTime)
		}
		return due[i].ID < due[j].ID
	})
	return due, nil
}

func (r *scheduleRepository) ListByUserID(ctx context.Context, platform models.Platform, userID string) ([]*models.ScheduledPost, error) {
	posts, err := r.list(ctx, fmt.Sprintf("scheduled/%s/%s/", platform, userID))
	if err != nil {
		return nil, err
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].ScheduledTime.Before(posts[j].ScheduledTime)
	})
	return posts, nil
}

// Update writes sp if its version still matches the stored one and bumps the
// version on success.
func (r *scheduleRepository) Update(ctx context.Context, sp *models.ScheduledPost) error {
	key := ScheduleKey(sp.Platform, sp.UserID, sp.ID)

	unlock := r.locks.lock(key)
	defer unlock()

	current, err := r.get(ctx, key)
	if err != nil {
		return err
	}
	if current.Version != sp.Version {
		return fmt.Errorf("schedule %s at version %d, have %d: %w", sp.ID, current.Version, sp.Version, models.ErrVersionConflict)
	}

	next := *sp
	next.Version++
	if err := r.put(ctx, key, &next); err != nil {
		return err
	}
	sp.Version = next.Version
	return nil
}

// Remove deletes the record and its image under the same version check as
// Update.
func (r *scheduleRepository) Remove(ctx context.Context, sp *models.ScheduledPost) error {
	key := ScheduleKey(sp.Platform, sp.UserID, sp.ID)

	unlock := r.locks.lock(key)
	defer unlock()

	current, err := r.get(ctx, key)
	if err != nil {
		return err
	}
	if current.Version != sp.Version {
		return fmt.Errorf("schedule %s at version %d, have %d: %w", sp.ID, current.Version, sp.Version, models.ErrVersionConflict)
	}

	if sp.ImageKey != "" {
		if err := r.store.Delete(ctx, sp.ImageKey); err != nil {
			return err
		}
	}
	return r.store.Delete(ctx, key)
}

func (r *scheduleRepository) get(ctx context.Context, key string) (*models.ScheduledPost, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var sp models.ScheduledPost
	if err := json.Unmarshal(data, &sp); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &sp, nil
}

func (r *scheduleRepository) put(ctx context.Context, key string, sp *models.ScheduledPost) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, key, data, "application/json")
}

// list loads every record document under prefix. Image blobs and records
// that fail to decode are skipped.
func (r *scheduleRepository) list(ctx context.Context, prefix string) ([]*models.ScheduledPost, error) {
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	posts := make([]*models.ScheduledPost, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		sp, err := r.get(ctx, key)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			slog.Warn("skipping unreadable schedule record", "key", key, "error", err)
			continue
		}
		posts = append(posts, sp)
	}
	return posts, nil
}

// keyLocks serialises read-modify-write cycles per blob key.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: map[string]*keyLock{}}
}

func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
