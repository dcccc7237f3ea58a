package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type TokenService interface {
	GetValidToken(ctx context.Context, platform models.Platform, userID string) (*models.Token, error)
	Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error)
	RefreshCandidates(ctx context.Context, platform models.Platform, within time.Duration) ([]*models.TokenRecord, error)
}

// Refresher exchanges a stored credential for a fresh one.
type Refresher interface {
	CanRefresh(tr *models.TokenRecord, now time.Time) bool
	Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error)
}

type tokenService struct {
	tokens     repository.TokenRepository
	refreshers map[models.Platform]Refresher
	now        func() time.Time

	// One exchange per account at a time. Platforms rotate refresh tokens,
	// so a second concurrent exchange of the same token is rejected.
	flights singleflight.Group
}

func NewTokenService(tokens repository.TokenRepository, refreshers map[models.Platform]Refresher) TokenService {
	return &tokenService{
		tokens:     tokens,
		refreshers: refreshers,
		now:        time.Now,
	}
}

func (s *tokenService) GetValidToken(ctx context.Context, platform models.Platform, userID string) (*models.Token, error) {
	tr, err := s.tokens.Get(ctx, platform, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.NewAuthError("get token", fmt.Errorf("%s/%s: %w", platform, userID, models.ErrNoToken))
		}
		return nil, models.NewTransientError("get token", err)
	}

	refreshed := false
	if tr.Expired(s.now()) {
		refresher, ok := s.refreshers[platform]
		if tr.RefreshToken == "" || !ok || !refresher.CanRefresh(tr, s.now()) {
			return nil, models.NewAuthError("get token", fmt.Errorf("%s/%s: %w", platform, userID, models.ErrTokenExpiredNoRefresh))
		}

		if tr, err = s.Refresh(ctx, tr); err != nil {
			return nil, err
		}
		refreshed = true
	}

	return &models.Token{
		AccessToken:    tr.AccessToken,
		TokenType:      tr.TokenType,
		PlatformUserID: tr.PlatformUserID,
		PageID:         tr.PageID,
		Refreshed:      refreshed,
	}, nil
}

// Refresh exchanges tr for a new credential and persists it. When tr is
// stale because another caller already refreshed the account, the stored
// credential is returned without a second exchange.
func (s *tokenService) Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error) {
	v, err, _ := s.flights.Do(repository.TokenKey(tr.Platform, tr.UserID), func() (interface{}, error) {
		return s.refresh(ctx, tr)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.TokenRecord), nil
}

func (s *tokenService) refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error) {
	refresher, ok := s.refreshers[tr.Platform]
	if !ok {
		return nil, models.NewAuthError("refresh token", fmt.Errorf("no refresher for %s", tr.Platform))
	}

	current, err := s.tokens.Get(ctx, tr.Platform, tr.UserID)
	switch {
	case err == nil && current.AccessToken != tr.AccessToken:
		slog.Info("token already refreshed", "platform", tr.Platform, "user_id", tr.UserID)
		return current, nil
	case err == nil:
		tr = current
	case !errors.Is(err, models.ErrNotFound):
		slog.Info(err.Error())
		return nil, models.NewTransientError("refresh token", err)
	}

	updated, err := refresher.Refresh(ctx, tr)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	updated.UpdatedAt = s.now()

	if err := s.tokens.Save(ctx, updated); err != nil {
		return nil, models.NewTransientError("save token", err)
	}

	slog.Info("token refreshed", "platform", tr.Platform, "user_id", tr.UserID)
	return updated, nil
}

// RefreshCandidates lists records of platform that expire within the window
// and that its refresher is able to renew.
func (s *tokenService) RefreshCandidates(ctx context.Context, platform models.Platform, within time.Duration) ([]*models.TokenRecord, error) {
	refresher, ok := s.refreshers[platform]
	if !ok {
		return nil, nil
	}

	records, err := s.tokens.ListByPlatform(ctx, platform)
	if err != nil {
		return nil, err
	}

	now := s.now()
	deadline := now.Add(within)

	var due []*models.TokenRecord
	for _, tr := range records {
		if tr.ExpiresAt == nil || tr.ExpiresAt.After(deadline) {
			continue
		}
		if refresher.CanRefresh(tr, now) {
			due = append(due, tr)
		}
	}
	return due, nil
}

type oauth2Refresher struct {
	cfg    *oauth2.Config
	client *http.Client
}

// NewOAuth2Refresher performs the refresh-token grant with the client
// credentials sent as a basic auth header.
func NewOAuth2Refresher(clientID, clientSecret, tokenURL string, client *http.Client) Refresher {
	return &oauth2Refresher{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
	}
}

func (r *oauth2Refresher) CanRefresh(tr *models.TokenRecord, now time.Time) bool {
	return tr.RefreshToken != ""
}

func (r *oauth2Refresher) Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error) {
	if r.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)
	}

	tok, err := r.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: tr.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			switch code := re.Response.StatusCode; {
			case code == http.StatusBadRequest, code == http.StatusUnauthorized:
				return nil, models.NewAuthError("refresh token", err)
			case code == http.StatusForbidden:
				return nil, models.NewPermissionError("refresh token", err)
			}
		}
		return nil, models.NewTransientError("refresh token", err)
	}

	updated := *tr
	updated.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		updated.TokenType = tok.TokenType
	}
	updated.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		updated.ExpiresAt = &expiry
	}
	return &updated, nil
}

type instagramRefresher struct {
	refreshURL string
	client     *http.Client
	now        func() time.Time
}

// NewInstagramRefresher renews long-lived Instagram tokens. They can only be
// renewed while still valid.
func NewInstagramRefresher(refreshURL string, client *http.Client) Refresher {
	return &instagramRefresher{refreshURL: refreshURL, client: client, now: time.Now}
}

func (r *instagramRefresher) CanRefresh(tr *models.TokenRecord, now time.Time) bool {
	return tr.AccessToken != "" && !tr.Expired(now)
}

func (r *instagramRefresher) Refresh(ctx context.Context, tr *models.TokenRecord) (*models.TokenRecord, error) {
	if !r.CanRefresh(tr, r.now()) {
		return nil, models.NewAuthError("refresh token", models.ErrTokenExpiredNoRefresh)
	}

	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", tr.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.refreshURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result transfer.InstagramRefreshResponse
	if err := doJSON(r.client, req, "refresh token", classifyGraphError, &result); err != nil {
		return nil, err
	}

	updated := *tr
	updated.AccessToken = result.AccessToken
	if result.TokenType != "" {
		updated.TokenType = result.TokenType
	}
	expiresAt := r.now().Add(time.Duration(result.ExpiresIn) * time.Second)
	updated.ExpiresAt = &expiresAt
	return &updated, nil
}
