package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	createStatus  int
	createBody    string
	publishStatus int
	created       []map[string]string
	published     []map[string]string
}

func (f *fakeGraph) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v21.0/ig-user/media", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.created = append(f.created, body)
		if f.createStatus != 0 {
			w.WriteHeader(f.createStatus)
			_, _ = w.Write([]byte(f.createBody))
			return
		}
		_, _ = w.Write([]byte(`{"id":"creation-1"}`))
	})
	mux.HandleFunc("/v21.0/ig-user/media_publish", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.published = append(f.published, body)
		if f.publishStatus != 0 {
			w.WriteHeader(f.publishStatus)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ig-post-1"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestInstagram(t *testing.T, fake *fakeGraph) (PlatformAdapter, storage.BlobStore, string) {
	t.Helper()
	srv := fake.server(t)
	store := storage.NewMemoryStore()
	dir := t.TempDir()
	adapter := NewInstagramAdapter(
		config.Instagram{GraphURL: srv.URL + "/v21.0"},
		store,
		NewMediaHost(dir, "https://cdn.example.com"),
		srv.Client(),
	)
	return adapter, store, dir
}

func storedImagePost(t *testing.T, store storage.BlobStore, platform models.Platform) *models.ScheduledPost {
	t.Helper()
	post := &models.ScheduledPost{
		ID:          "j1",
		UserID:      "u1",
		Platform:    platform,
		Text:        "caption",
		ImageKey:    "scheduled/" + string(platform) + "/u1/j1_image.jpg",
		ImageFormat: models.ImageFormatJPEG,
	}
	require.NoError(t, store.Put(context.Background(), post.ImageKey, jpegBytes(t), "image/jpeg"))
	return post
}

func dirEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return len(entries)
}

func TestInstagramAdapter_Publish(t *testing.T) {
	ctx := context.Background()
	fake := &fakeGraph{}
	adapter, store, dir := newTestInstagram(t, fake)
	post := storedImagePost(t, store, models.PlatformInstagram)

	media, err := adapter.PrepareMedia(ctx, post)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(media.URL, "https://cdn.example.com/media/"))
	assert.Equal(t, 1, dirEntries(t, dir))

	res, err := adapter.Publish(ctx, &models.Token{AccessToken: "ig-token", PlatformUserID: "ig-user"}, post, media)
	require.NoError(t, err)
	assert.Equal(t, "ig-post-1", res.PostID)
	assert.Equal(t, "creation-1", res.MediaID)

	require.Len(t, fake.created, 1)
	assert.Equal(t, media.URL, fake.created[0]["image_url"])
	assert.Equal(t, "caption", fake.created[0]["caption"])
	assert.Equal(t, "ig-token", fake.created[0]["access_token"])
	require.Len(t, fake.published, 1)
	assert.Equal(t, "creation-1", fake.published[0]["creation_id"])

	media.Release()
	assert.Equal(t, 0, dirEntries(t, dir))
	_, err = os.Stat(filepath.Join(dir, filepath.Base(media.URL)))
	assert.True(t, os.IsNotExist(err))
}

func TestInstagramAdapter_RequiresImage(t *testing.T) {
	adapter, _, _ := newTestInstagram(t, &fakeGraph{})

	_, err := adapter.PrepareMedia(context.Background(), &models.ScheduledPost{ID: "j1", Text: "no image"})
	require.Error(t, err)
	assert.Equal(t, models.KindValidation, models.KindOf(err))
}

func TestInstagramAdapter_Errors(t *testing.T) {
	tests := []struct {
		name        string
		fake        *fakeGraph
		wantKind    models.ErrorKind
		wantMediaID string
	}{
		{
			name:     "create 500",
			fake:     &fakeGraph{createStatus: http.StatusInternalServerError},
			wantKind: models.KindTransient,
		},
		{
			name:     "create transient graph error",
			fake:     &fakeGraph{createStatus: http.StatusBadRequest, createBody: `{"error":{"message":"Please retry","code":2,"is_transient":true}}`},
			wantKind: models.KindTransient,
		},
		{
			name:     "create expired token",
			fake:     &fakeGraph{createStatus: http.StatusBadRequest, createBody: `{"error":{"message":"Session has expired","code":190}}`},
			wantKind: models.KindAuth,
		},
		{
			name:        "publish 502",
			fake:        &fakeGraph{publishStatus: http.StatusBadGateway},
			wantKind:    models.KindTransient,
			wantMediaID: "creation-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			adapter, store, dir := newTestInstagram(t, tt.fake)
			post := storedImagePost(t, store, models.PlatformInstagram)

			media, err := adapter.PrepareMedia(ctx, post)
			require.NoError(t, err)
			defer func() {
				media.Release()
				assert.Equal(t, 0, dirEntries(t, dir))
			}()

			_, err = adapter.Publish(ctx, &models.Token{AccessToken: "ig-token", PlatformUserID: "ig-user"}, post, media)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, models.KindOf(err))
			assert.Equal(t, tt.wantMediaID, models.OrphanedMediaID(err))
		})
	}
}
