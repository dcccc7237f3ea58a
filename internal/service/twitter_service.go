package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/internal/transfer"
)

const (
	twitterChunkSize  = 1 << 20
	twitterMaxTextLen = 280
)

type twitterAdapter struct {
	cfg    config.Twitter
	store  storage.BlobStore
	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTwitterAdapter publishes tweets, uploading any image through the chunked
// INIT / APPEND / FINALIZE / STATUS media commands first.
func NewTwitterAdapter(cfg config.Twitter, store storage.BlobStore, client *http.Client) PlatformAdapter {
	return &twitterAdapter{
		cfg:    cfg,
		store:  store,
		client: client,
		sleep:  sleepContext,
	}
}

func (tw *twitterAdapter) Platform() models.Platform {
	return models.PlatformTwitter
}

func (tw *twitterAdapter) PrepareMedia(ctx context.Context, post *models.ScheduledPost) (*models.MediaRef, error) {
	img, err := loadImage(ctx, tw.store, post)
	if err != nil || img == nil {
		return nil, err
	}
	return models.NewMediaRef(img.Bytes, img.Format, "", nil), nil
}

func (tw *twitterAdapter) Publish(ctx context.Context, token *models.Token, post *models.ScheduledPost, media *models.MediaRef) (*models.PublishResult, error) {
	if utf8.RuneCountInString(post.Text) > twitterMaxTextLen {
		return nil, models.NewValidationError("publish", fmt.Errorf("tweet text exceeds %d characters", twitterMaxTextLen))
	}

	var mediaID string
	if media != nil && len(media.Bytes) > 0 {
		id, err := tw.uploadMedia(ctx, token.AccessToken, media)
		if err != nil {
			return nil, models.WithMediaID(err, id)
		}
		mediaID = id
	}

	postID, err := tw.createTweet(ctx, token.AccessToken, post.Text, mediaID)
	if err != nil {
		return nil, models.WithMediaID(err, mediaID)
	}

	return &models.PublishResult{PostID: postID, MediaID: mediaID}, nil
}

// uploadMedia returns the media id as soon as INIT succeeded, also on error,
// so the caller can track the orphaned upload.
func (tw *twitterAdapter) uploadMedia(ctx context.Context, accessToken string, media *models.MediaRef) (string, error) {
	initResp, err := tw.command(ctx, accessToken, "INIT", []formField{
		{"command", "INIT"},
		{"total_bytes", strconv.Itoa(len(media.Bytes))},
		{"media_type", media.Format.MIME()},
		{"media_category", "tweet_image"},
	}, nil)
	if err != nil {
		return "", err
	}
	mediaID := initResp.Data.ID
	if mediaID == "" {
		return "", models.NewTransientError("media INIT", errors.New("no media ID returned"))
	}

	for i, chunk := range splitChunks(media.Bytes, twitterChunkSize) {
		_, err := tw.command(ctx, accessToken, "APPEND", []formField{
			{"command", "APPEND"},
			{"media_id", mediaID},
			{"segment_index", strconv.Itoa(i)},
		}, &formFile{field: "media", filename: "blob", data: chunk})
		if err != nil {
			return mediaID, err
		}
	}

	final, err := tw.command(ctx, accessToken, "FINALIZE", []formField{
		{"command", "FINALIZE"},
		{"media_id", mediaID},
	}, nil)
	if err != nil {
		return mediaID, err
	}

	if final.Data.ProcessingInfo == nil {
		return mediaID, nil
	}
	return mediaID, tw.waitForProcessing(ctx, accessToken, mediaID, final.Data.ProcessingInfo)
}

func (tw *twitterAdapter) waitForProcessing(ctx context.Context, accessToken, mediaID string, info *transfer.TwitterProcessingInfo) error {
	for polls := 0; ; polls++ {
		switch info.State {
		case "succeeded":
			return nil
		case "failed":
			msg := "media processing failed"
			if info.Error != nil && info.Error.Message != "" {
				msg = info.Error.Message
			}
			return models.NewValidationError("media STATUS", fmt.Errorf("media %s: %s", mediaID, msg))
		}

		if polls >= tw.cfg.MaxPolls {
			return models.NewProcessingTimeoutError("media STATUS", fmt.Errorf("media %s after %d polls: %w", mediaID, polls, models.ErrMediaProcessingTimeout))
		}

		if err := tw.sleep(ctx, tw.cfg.PollInterval); err != nil {
			return models.NewTransientError("media STATUS", err)
		}

		status, err := tw.status(ctx, accessToken, mediaID)
		if err != nil {
			return err
		}
		if status.Data.ProcessingInfo == nil {
			return nil
		}
		info = status.Data.ProcessingInfo
	}
}

func (tw *twitterAdapter) command(ctx context.Context, accessToken, name string, fields []formField, file *formFile) (*transfer.TwitterMediaResponse, error) {
	req, err := newMultipartRequest(ctx, tw.cfg.UploadURL, fields, file)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out transfer.TwitterMediaResponse
	if name == "APPEND" {
		return &out, doJSON(tw.client, req, "media "+name, classifyHTTPStatus, nil)
	}
	if err := doJSON(tw.client, req, "media "+name, classifyHTTPStatus, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (tw *twitterAdapter) status(ctx context.Context, accessToken, mediaID string) (*transfer.TwitterMediaResponse, error) {
	q := url.Values{}
	q.Set("command", "STATUS")
	q.Set("media_id", mediaID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tw.cfg.UploadURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out transfer.TwitterMediaResponse
	if err := doJSON(tw.client, req, "media STATUS", classifyHTTPStatus, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (tw *twitterAdapter) createTweet(ctx context.Context, accessToken, text, mediaID string) (string, error) {
	payload := transfer.TwitterCreateTweetRequest{Text: text}
	if mediaID != "" {
		payload.Media = &transfer.TwitterTweetMedia{MediaIDs: []string{mediaID}}
	}

	req, err := newJSONRequest(ctx, http.MethodPost, strings.TrimRight(tw.cfg.APIBaseURL, "/")+"/tweets", payload)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var out transfer.TwitterCreateTweetResponse
	if err := doJSON(tw.client, req, "create tweet", classifyHTTPStatus, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", models.NewTransientError("create tweet", errors.New("no tweet ID returned"))
	}
	return out.Data.ID, nil
}

// splitChunks partitions data into consecutive slices of at most size bytes.
func splitChunks(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}
