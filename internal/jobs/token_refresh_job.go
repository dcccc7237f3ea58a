package job

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/service"
)

const (
	refreshWindow    = 30 * time.Minute
	concurrencyLimit = 10
)

// TokenRefreshJob renews credentials shortly before they expire so the
// dispatcher rarely has to refresh inline.
type TokenRefreshJob struct {
	tokens    service.TokenService
	platforms []models.Platform
}

func NewTokenRefreshJob(tokens service.TokenService, platforms []models.Platform) *TokenRefreshJob {
	return &TokenRefreshJob{
		tokens:    tokens,
		platforms: platforms,
	}
}

// RefreshTokens is the cron entry point.
func (c *TokenRefreshJob) RefreshTokens() {
	c.Run(context.Background())
}

// Run refreshes every token expiring within the next 30 minutes and returns
// how many were renewed.
func (c *TokenRefreshJob) Run(ctx context.Context) int {
	var (
		wg        sync.WaitGroup
		refreshed atomic.Int32
	)
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, platform := range c.platforms {
		accounts, err := c.tokens.RefreshCandidates(ctx, platform, refreshWindow)
		if err != nil {
			slog.Info(err.Error())
			continue
		}

		for _, acc := range accounts {
			wg.Add(1)
			semaphore <- struct{}{}

			go func(acc *models.TokenRecord) {
				defer wg.Done()
				defer func() { <-semaphore }()

				if _, err := c.tokens.Refresh(ctx, acc); err != nil {
					slog.Info("Unable to refresh token", "platform", acc.Platform, "user_id", acc.UserID, "error", err)
					return
				}
				refreshed.Add(1)
			}(acc)
		}
	}

	wg.Wait()
	return int(refreshed.Load())
}
