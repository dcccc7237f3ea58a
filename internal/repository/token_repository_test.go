package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRepository_EncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cipher, err := utils.NewTokenCipher([]byte("0123456789abcdef"))
	require.NoError(t, err)
	repo := NewTokenRepository(store, cipher)

	expires := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &models.TokenRecord{
		Platform:     models.PlatformTwitter,
		UserID:       "u1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    &expires,
	}))

	raw, err := store.Get(ctx, "tokens/twitter/u1/token.json")
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "access-1"))
	assert.False(t, strings.Contains(string(raw), "refresh-1"))

	tr, err := repo.Get(ctx, models.PlatformTwitter, "u1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tr.AccessToken)
	assert.Equal(t, "refresh-1", tr.RefreshToken)
	assert.True(t, expires.Equal(*tr.ExpiresAt))
}

func TestTokenRepository_PlainAndList(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cipher, err := utils.NewTokenCipher(nil)
	require.NoError(t, err)
	repo := NewTokenRepository(store, cipher)

	require.NoError(t, store.Put(ctx, "tokens/instagram/u1/token.json", []byte(`{"accessToken":"ig-1"}`), "application/json"))
	require.NoError(t, repo.Save(ctx, &models.TokenRecord{Platform: models.PlatformInstagram, UserID: "u2", AccessToken: "ig-2"}))
	require.NoError(t, repo.Save(ctx, &models.TokenRecord{Platform: models.PlatformTwitter, UserID: "u3", AccessToken: "tw-3"}))

	records, err := repo.ListByPlatform(ctx, models.PlatformInstagram)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ig-1", records[0].AccessToken)
	assert.Equal(t, "ig-2", records[1].AccessToken)

	_, err = repo.Get(ctx, models.PlatformFacebook, "u1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
