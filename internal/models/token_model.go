package models

import (
	"time"
)

// TokenRecord holds the credentials of one connected account. It is stored at
// tokens/<platform>/<userId>/token.json.
type TokenRecord struct {
	Platform       Platform   `json:"platform"`
	UserID         string     `json:"userId"`
	PlatformUserID string     `json:"platformUserId,omitempty"`
	PageID         string     `json:"pageId,omitempty"`
	AccessToken    string     `json:"accessToken"`
	RefreshToken   string     `json:"refreshToken,omitempty"`
	TokenType      string     `json:"tokenType,omitempty"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (t *TokenRecord) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// Token is what adapters receive: a usable access token plus the identifiers
// they need to address the account.
type Token struct {
	AccessToken    string
	TokenType      string
	PlatformUserID string
	PageID         string
	Refreshed      bool
}
