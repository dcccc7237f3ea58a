package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFacebook struct {
	identityStatus int
	identityBody   string
	feedCalls      int
	photoCalls     int
	lastMessage    string
	lastCaption    string
	lastPhotoSize  int
}

func (f *fakeFacebook) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/target-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("metadata"))
		assert.Equal(t, "fb-token", r.URL.Query().Get("access_token"))
		if f.identityStatus != 0 {
			w.WriteHeader(f.identityStatus)
		}
		_, _ = w.Write([]byte(f.identityBody))
	})
	mux.HandleFunc("/v21.0/target-1/feed", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		f.feedCalls++
		f.lastMessage = r.PostForm.Get("message")
		_, _ = w.Write([]byte(`{"id":"target-1_post-1"}`))
	})
	mux.HandleFunc("/v21.0/target-1/photos", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f.photoCalls++
		f.lastCaption = r.FormValue("caption")
		file, _, err := r.FormFile("source")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		f.lastPhotoSize = len(data)
		_, _ = w.Write([]byte(`{"id":"photo-1","post_id":"target-1_post-2"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFacebook(t *testing.T, fake *fakeFacebook) (PlatformAdapter, storage.BlobStore) {
	t.Helper()
	srv := fake.server(t)
	store := storage.NewMemoryStore()
	return NewFacebookAdapter(config.Facebook{GraphURL: srv.URL + "/v21.0"}, store, srv.Client()), store
}

func fbToken() *models.Token {
	return &models.Token{AccessToken: "fb-token", PageID: "target-1"}
}

func TestFacebookAdapter_PersonalProfileFallsBack(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFacebook{identityBody: `{"id":"target-1","name":"Jo","metadata":{"type":"user"}}`}
	adapter, store := newTestFacebook(t, fake)
	post := storedImagePost(t, store, models.PlatformFacebook)

	media, err := adapter.PrepareMedia(ctx, post)
	require.NoError(t, err)

	res, err := adapter.Publish(ctx, fbToken(), post, media)
	require.NoError(t, err)
	require.NotNil(t, res.Manual)
	assert.Equal(t, "caption", res.Manual.Caption)
	assert.Equal(t, post.ImageKey, res.Manual.ImageRef)
	assert.NotEmpty(t, res.Manual.Action)
	assert.Empty(t, res.PostID)
	assert.Equal(t, 0, fake.feedCalls)
	assert.Equal(t, 0, fake.photoCalls)
}

func TestFacebookAdapter_PermissionDeniedFallsBack(t *testing.T) {
	fake := &fakeFacebook{identityStatus: http.StatusForbidden, identityBody: `{"error":{"message":"Requires pages_manage_posts","code":200}}`}
	adapter, _ := newTestFacebook(t, fake)

	res, err := adapter.Publish(context.Background(), fbToken(), &models.ScheduledPost{Text: "hi"}, nil)
	require.NoError(t, err)
	require.NotNil(t, res.Manual)
	assert.Equal(t, 0, fake.feedCalls)
}

func TestFacebookAdapter_PageFeed(t *testing.T) {
	fake := &fakeFacebook{identityBody: `{"id":"target-1","name":"Shop","metadata":{"type":"page"}}`}
	adapter, _ := newTestFacebook(t, fake)

	res, err := adapter.Publish(context.Background(), fbToken(), &models.ScheduledPost{Text: "hello page"}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Manual)
	assert.Equal(t, "target-1_post-1", res.PostID)
	assert.Equal(t, 1, fake.feedCalls)
	assert.Equal(t, "hello page", fake.lastMessage)
}

func TestFacebookAdapter_PagePhoto(t *testing.T) {
	ctx := context.Background()
	fake := &fakeFacebook{identityBody: `{"id":"target-1","name":"Shop","metadata":{"type":"page"}}`}
	adapter, store := newTestFacebook(t, fake)
	post := storedImagePost(t, store, models.PlatformFacebook)

	media, err := adapter.PrepareMedia(ctx, post)
	require.NoError(t, err)

	res, err := adapter.Publish(ctx, fbToken(), post, media)
	require.NoError(t, err)
	assert.Equal(t, "target-1_post-2", res.PostID)
	assert.Equal(t, "photo-1", res.MediaID)
	assert.Equal(t, 1, fake.photoCalls)
	assert.Equal(t, "caption", fake.lastCaption)
	assert.Equal(t, len(media.Bytes), fake.lastPhotoSize)
	assert.Equal(t, 0, fake.feedCalls)
}

func TestFacebookAdapter_IdentityServerError(t *testing.T) {
	fake := &fakeFacebook{identityStatus: http.StatusServiceUnavailable, identityBody: "unavailable"}
	adapter, _ := newTestFacebook(t, fake)

	_, err := adapter.Publish(context.Background(), fbToken(), &models.ScheduledPost{Text: "hi"}, nil)
	require.Error(t, err)
	assert.True(t, models.Retryable(err))
}
