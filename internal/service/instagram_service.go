package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/internal/transfer"
)

type instagramAdapter struct {
	cfg    config.Instagram
	store  storage.BlobStore
	host   MediaHost
	client *http.Client
}

// NewInstagramAdapter publishes single-image posts through the container
// create + publish flow. Images are exposed through host because the
// platform fetches them by URL.
func NewInstagramAdapter(cfg config.Instagram, store storage.BlobStore, host MediaHost, client *http.Client) PlatformAdapter {
	return &instagramAdapter{
		cfg:    cfg,
		store:  store,
		host:   host,
		client: client,
	}
}

func (ig *instagramAdapter) Platform() models.Platform {
	return models.PlatformInstagram
}

func (ig *instagramAdapter) PrepareMedia(ctx context.Context, post *models.ScheduledPost) (*models.MediaRef, error) {
	img, err := loadImage(ctx, ig.store, post)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, models.NewValidationError("prepare media", errors.New("instagram posts require an image"))
	}

	url, release, err := ig.host.Host(img.Bytes, img.Format)
	if err != nil {
		return nil, models.NewTransientError("prepare media", err)
	}
	return models.NewMediaRef(img.Bytes, img.Format, url, release), nil
}

func (ig *instagramAdapter) Publish(ctx context.Context, token *models.Token, post *models.ScheduledPost, media *models.MediaRef) (*models.PublishResult, error) {
	if media == nil || media.URL == "" {
		return nil, models.NewValidationError("publish", errors.New("instagram posts require a hosted image"))
	}

	accountID := token.PlatformUserID
	if accountID == "" {
		accountID = "me"
	}

	creationID, err := ig.createContainer(ctx, accountID, post.Text, media.URL, token.AccessToken)
	if err != nil {
		return nil, err
	}

	postID, err := ig.publishContainer(ctx, accountID, creationID, token.AccessToken)
	if err != nil {
		return nil, models.WithMediaID(err, creationID)
	}

	return &models.PublishResult{PostID: postID, MediaID: creationID}, nil
}

func (ig *instagramAdapter) createContainer(ctx context.Context, accountID, caption, imageURL, accessToken string) (string, error) {
	url := fmt.Sprintf("%s/%s/media", strings.TrimRight(ig.cfg.GraphURL, "/"), accountID)

	req, err := newJSONRequest(ctx, http.MethodPost, url, transfer.InstagramCreateMediaRequest{
		ImageURL:    imageURL,
		Caption:     caption,
		AccessToken: accessToken,
	})
	if err != nil {
		return "", err
	}

	var result transfer.InstagramIDResponse
	if err := doJSON(ig.client, req, "create media", classifyGraphError, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", models.NewTransientError("create media", errors.New("no media ID returned from Instagram"))
	}
	return result.ID, nil
}

func (ig *instagramAdapter) publishContainer(ctx context.Context, accountID, creationID, accessToken string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", strings.TrimRight(ig.cfg.GraphURL, "/"), accountID)

	req, err := newJSONRequest(ctx, http.MethodPost, url, transfer.InstagramPublishRequest{
		CreationID:  creationID,
		AccessToken: accessToken,
	})
	if err != nil {
		return "", err
	}

	var result transfer.InstagramIDResponse
	if err := doJSON(ig.client, req, "publish media", classifyGraphError, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", models.NewTransientError("publish media", errors.New("no post ID returned from Instagram"))
	}
	return result.ID, nil
}
