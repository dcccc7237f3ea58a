package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
)

type PublishedPostRepository interface {
	Create(ctx context.Context, pp *models.PublishedPost) (int64, error)
	ListByUserID(ctx context.Context, platform models.Platform, userID string) ([]*models.PublishedPost, error)
}

type postgresPublishedPostRepository struct {
	db *sql.DB
}

func NewPostgresPublishedPostRepository(db *sql.DB) PublishedPostRepository {
	return &postgresPublishedPostRepository{db: db}
}

const publishedPostsSchema = `
	CREATE TABLE IF NOT EXISTS published_posts (
		id BIGSERIAL PRIMARY KEY,
		job_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		platform_post_id TEXT NOT NULL,
		platform_media_id TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL,
		published_at TIMESTAMPTZ NOT NULL
	)
`

// EnsureSchema creates the published_posts table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, publishedPostsSchema); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to create published_posts: %w", err)
	}
	return nil
}

func (r *postgresPublishedPostRepository) Create(ctx context.Context, pp *models.PublishedPost) (int64, error) {
	query := `
		INSERT INTO published_posts (job_id, user_id, platform, text, platform_post_id, platform_media_id, attempts, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET platform_post_id = EXCLUDED.platform_post_id
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		pp.JobID,
		pp.UserID,
		pp.Platform,
		pp.Text,
		pp.PlatformPostID,
		pp.PlatformMediaID,
		pp.Attempts,
		pp.PublishedAt,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	pp.ID = id
	return id, nil
}

func (r *postgresPublishedPostRepository) ListByUserID(ctx context.Context, platform models.Platform, userID string) ([]*models.PublishedPost, error) {
	query := `
		SELECT id, job_id, user_id, platform, text, platform_post_id, platform_media_id, attempts, published_at
		FROM published_posts
		WHERE platform = $1 AND user_id = $2
		ORDER BY published_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, platform, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.PublishedPost
	for rows.Next() {
		var pp models.PublishedPost
		err := rows.Scan(
			&pp.ID,
			&pp.JobID,
			&pp.UserID,
			&pp.Platform,
			&pp.Text,
			&pp.PlatformPostID,
			&pp.PlatformMediaID,
			&pp.Attempts,
			&pp.PublishedAt,
		)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &pp)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return posts, nil
}

type blobPublishedPostRepository struct {
	store storage.BlobStore
}

// NewBlobPublishedPostRepository keeps history as JSON documents next to the
// schedule records, for deployments without Postgres.
func NewBlobPublishedPostRepository(store storage.BlobStore) PublishedPostRepository {
	return &blobPublishedPostRepository{store: store}
}

func (r *blobPublishedPostRepository) Create(ctx context.Context, pp *models.PublishedPost) (int64, error) {
	data, err := json.Marshal(pp)
	if err != nil {
		return 0, err
	}
	key := fmt.Sprintf("published/%s/%s/%s.json", pp.Platform, pp.UserID, pp.JobID)
	if err := r.store.Put(ctx, key, data, "application/json"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (r *blobPublishedPostRepository) ListByUserID(ctx context.Context, platform models.Platform, userID string) ([]*models.PublishedPost, error) {
	keys, err := r.store.List(ctx, fmt.Sprintf("published/%s/%s/", platform, userID))
	if err != nil {
		return nil, err
	}

	var posts []*models.PublishedPost
	for _, key := range keys {
		data, err := r.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		var pp models.PublishedPost
		if err := json.Unmarshal(data, &pp); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		posts = append(posts, &pp)
	}

	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].PublishedAt.After(posts[j].PublishedAt)
	})
	return posts, nil
}
