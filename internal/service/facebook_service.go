package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const manualPostAction = "Facebook does not allow automated posting to personal profiles. Open Facebook and publish this post yourself."

type facebookAdapter struct {
	cfg    config.Facebook
	store  storage.BlobStore
	client *http.Client
}

// NewFacebookAdapter posts to managed pages. Any other identity gets a
// manual fallback instead of a publish call.
func NewFacebookAdapter(cfg config.Facebook, store storage.BlobStore, client *http.Client) PlatformAdapter {
	return &facebookAdapter{
		cfg:    cfg,
		store:  store,
		client: client,
	}
}

func (fb *facebookAdapter) Platform() models.Platform {
	return models.PlatformFacebook
}

func (fb *facebookAdapter) PrepareMedia(ctx context.Context, post *models.ScheduledPost) (*models.MediaRef, error) {
	img, err := loadImage(ctx, fb.store, post)
	if err != nil || img == nil {
		return nil, err
	}
	return models.NewMediaRef(img.Bytes, img.Format, "", nil), nil
}

func (fb *facebookAdapter) Publish(ctx context.Context, token *models.Token, post *models.ScheduledPost, media *models.MediaRef) (*models.PublishResult, error) {
	target := token.PageID
	if target == "" {
		target = token.PlatformUserID
	}
	if target == "" {
		target = "me"
	}

	identity, err := fb.identity(ctx, target, token.AccessToken)
	if err != nil {
		if models.KindOf(err) == models.KindPermission {
			return fb.manual(post), nil
		}
		return nil, err
	}
	if identity.Metadata.Type != "page" {
		return fb.manual(post), nil
	}

	if media != nil && len(media.Bytes) > 0 {
		return fb.publishPhoto(ctx, identity.ID, token.AccessToken, post.Text, media)
	}
	return fb.publishFeed(ctx, identity.ID, token.AccessToken, post.Text)
}

func (fb *facebookAdapter) manual(post *models.ScheduledPost) *models.PublishResult {
	return &models.PublishResult{
		Manual: &models.ManualInstructions{
			Caption:  post.Text,
			ImageRef: post.ImageKey,
			Action:   manualPostAction,
		},
	}
}

func (fb *facebookAdapter) identity(ctx context.Context, target, accessToken string) (*transfer.FacebookIdentity, error) {
	q := url.Values{}
	q.Set("metadata", "1")
	q.Set("fields", "id,name")
	q.Set("access_token", accessToken)

	reqURL := fmt.Sprintf("%s/%s?%s", strings.TrimRight(fb.cfg.GraphURL, "/"), target, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	var identity transfer.FacebookIdentity
	if err := doJSON(fb.client, req, "get identity", classifyGraphError, &identity); err != nil {
		return nil, err
	}
	if identity.ID == "" {
		identity.ID = target
	}
	return &identity, nil
}

func (fb *facebookAdapter) publishFeed(ctx context.Context, pageID, accessToken, message string) (*models.PublishResult, error) {
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", accessToken)

	reqURL := fmt.Sprintf("%s/%s/feed", strings.TrimRight(fb.cfg.GraphURL, "/"), pageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out transfer.FacebookPostResponse
	if err := doJSON(fb.client, req, "publish feed", classifyGraphError, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, models.NewTransientError("publish feed", errors.New("no post ID returned from Facebook"))
	}
	return &models.PublishResult{PostID: out.ID}, nil
}

func (fb *facebookAdapter) publishPhoto(ctx context.Context, pageID, accessToken, caption string, media *models.MediaRef) (*models.PublishResult, error) {
	reqURL := fmt.Sprintf("%s/%s/photos", strings.TrimRight(fb.cfg.GraphURL, "/"), pageID)
	req, err := newMultipartRequest(ctx, reqURL, []formField{
		{"caption", caption},
		{"access_token", accessToken},
	}, &formFile{field: "source", filename: "image." + media.Format.Extension(), data: media.Bytes})
	if err != nil {
		return nil, err
	}

	var out transfer.FacebookPostResponse
	if err := doJSON(fb.client, req, "publish photo", classifyGraphError, &out); err != nil {
		return nil, err
	}

	postID := out.PostID
	if postID == "" {
		postID = out.ID
	}
	if postID == "" {
		return nil, models.NewTransientError("publish photo", errors.New("no post ID returned from Facebook"))
	}
	return &models.PublishResult{PostID: postID, MediaID: out.ID}, nil
}
