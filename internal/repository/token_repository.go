package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type TokenRepository interface {
	Get(ctx context.Context, platform models.Platform, userID string) (*models.TokenRecord, error)
	Save(ctx context.Context, tr *models.TokenRecord) error
	ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.TokenRecord, error)
}

type tokenRepository struct {
	store  storage.BlobStore
	cipher *utils.TokenCipher
}

// NewTokenRepository stores token records in the blob store. Access and
// refresh tokens are sealed with cipher when it is enabled.
func NewTokenRepository(store storage.BlobStore, cipher *utils.TokenCipher) TokenRepository {
	return &tokenRepository{store: store, cipher: cipher}
}

func TokenKey(platform models.Platform, userID string) string {
	return fmt.Sprintf("tokens/%s/%s/token.json", platform, userID)
}

func (r *tokenRepository) Get(ctx context.Context, platform models.Platform, userID string) (*models.TokenRecord, error) {
	return r.get(ctx, TokenKey(platform, userID))
}

func (r *tokenRepository) Save(ctx context.Context, tr *models.TokenRecord) error {
	sealed := *tr

	var err error
	if sealed.AccessToken, err = r.cipher.Encrypt(tr.AccessToken); err != nil {
		return err
	}
	if sealed.RefreshToken, err = r.cipher.Encrypt(tr.RefreshToken); err != nil {
		return err
	}

	data, err := json.Marshal(&sealed)
	if err != nil {
		return err
	}
	return r.store.Put(ctx, TokenKey(tr.Platform, tr.UserID), data, "application/json")
}

func (r *tokenRepository) ListByPlatform(ctx context.Context, platform models.Platform) ([]*models.TokenRecord, error) {
	keys, err := r.store.List(ctx, fmt.Sprintf("tokens/%s/", platform))
	if err != nil {
		return nil, err
	}

	var records []*models.TokenRecord
	for _, key := range keys {
		if !strings.HasSuffix(key, "/token.json") {
			continue
		}
		tr, err := r.get(ctx, key)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			slog.Warn("skipping unreadable token record", "key", key, "error", err)
			continue
		}
		records = append(records, tr)
	}
	return records, nil
}

func (r *tokenRepository) get(ctx context.Context, key string) (*models.TokenRecord, error) {
	data, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var tr models.TokenRecord
	if err := json.Unmarshal(data, &tr); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	if tr.AccessToken, err = r.cipher.Decrypt(tr.AccessToken); err != nil {
		return nil, fmt.Errorf("decrypt access token %s: %w", key, err)
	}
	if tr.RefreshToken, err = r.cipher.Decrypt(tr.RefreshToken); err != nil {
		return nil, fmt.Errorf("decrypt refresh token %s: %w", key, err)
	}
	return &tr, nil
}
