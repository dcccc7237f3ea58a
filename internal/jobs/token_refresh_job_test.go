package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
)

type fakeTokenService struct {
	mu         sync.Mutex
	candidates map[models.Platform][]*models.TokenRecord
	listErr    map[models.Platform]error
	failUser   string
	refreshed  []string
}

func (f *fakeTokenService) GetValidToken(ctx context.Context, platform models.Platform, userID string) (*models.Token, error) {
	return nil, errors.New("not used")
}

func (f *fakeTokenService) Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error) {
	if tr.UserID == f.failUser {
		return nil, models.NewAuthError("refresh token", errors.New("invalid_grant"))
	}
	f.mu.Lock()
	f.refreshed = append(f.refreshed, string(tr.Platform)+"/"+tr.UserID)
	f.mu.Unlock()
	return tr, nil
}

func (f *fakeTokenService) RefreshCandidates(ctx context.Context, platform models.Platform, within time.Duration) ([]*models.TokenRecord, error) {
	if err := f.listErr[platform]; err != nil {
		return nil, err
	}
	return f.candidates[platform], nil
}

func TestTokenRefreshJob_Run(t *testing.T) {
	tokens := &fakeTokenService{
		candidates: map[models.Platform][]*models.TokenRecord{
			models.PlatformTwitter: {
				{Platform: models.PlatformTwitter, UserID: "u1"},
				{Platform: models.PlatformTwitter, UserID: "u2"},
				{Platform: models.PlatformTwitter, UserID: "revoked"},
			},
			models.PlatformInstagram: {
				{Platform: models.PlatformInstagram, UserID: "u1"},
			},
		},
		listErr:  map[models.Platform]error{models.PlatformFacebook: errors.New("store unavailable")},
		failUser: "revoked",
	}

	job := NewTokenRefreshJob(tokens, models.Platforms)
	n := job.Run(context.Background())

	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"twitter/u1", "twitter/u2", "instagram/u1"}, tokens.refreshed)
}

func TestTokenRefreshJob_NothingDue(t *testing.T) {
	tokens := &fakeTokenService{}
	job := NewTokenRefreshJob(tokens, models.Platforms)

	job.RefreshTokens()
	assert.Empty(t, tokens.refreshed)
}
