package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:            3,
		BaseDelay:              time.Minute,
		MaxDelay:               5 * time.Minute,
		ProcessingTimeoutDelay: 2 * time.Minute,
	}

	tests := []struct {
		kind     models.ErrorKind
		attempts int
		want     time.Duration
	}{
		{models.KindTransient, 0, time.Minute},
		{models.KindTransient, 1, time.Minute},
		{models.KindTransient, 2, 2 * time.Minute},
		{models.KindTransient, 3, 4 * time.Minute},
		{models.KindTransient, 4, 5 * time.Minute},
		{models.KindTransient, 40, 5 * time.Minute},
		{models.KindProcessingTimeout, 1, 2 * time.Minute},
		{models.KindProcessingTimeout, 2, 4 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.kind, tt.attempts), "%s attempt %d", tt.kind, tt.attempts)
	}
}

func TestRetryPolicy_Jitter(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Second, Jitter: 0.2}

	p.rand = func() float64 { return 0 }
	assert.InDelta(t, float64(100*time.Second), float64(p.Delay(models.KindTransient, 1)), float64(time.Millisecond))

	p.rand = func() float64 { return 1 }
	assert.InDelta(t, float64(80*time.Second), float64(p.Delay(models.KindTransient, 1)), float64(time.Millisecond))

	p.rand = nil
	for i := 0; i < 50; i++ {
		d := p.Delay(models.KindTransient, 1)
		assert.GreaterOrEqual(t, d, 79*time.Second)
		assert.LessOrEqual(t, d, p.BaseDelay, "jitter never lengthens a delay")
	}
}

func TestRetryPolicy_ZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Delay(models.KindTransient, 3))
}

func processingPost(attempts int) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:       "j1",
		Platform: models.PlatformTwitter,
		Text:     "hi",
		Status:   models.PostStatusProcessing,
		Attempts: attempts,
	}
}

func TestStatusManager_Begin(t *testing.T) {
	m := NewStatusManager(RetryPolicy{MaxAttempts: 3})
	now := time.Now()
	next := now.Add(-time.Minute)

	post := &models.ScheduledPost{Status: models.PostStatusScheduled, Attempts: 1, NextAttemptAt: &next}
	m.Begin(post, now)

	assert.Equal(t, models.PostStatusProcessing, post.Status)
	assert.Equal(t, 2, post.Attempts)
	assert.Equal(t, now, *post.LastAttemptAt)
	assert.Nil(t, post.NextAttemptAt)
}

func TestStatusManager_Finish(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewStatusManager(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Minute})

	tests := []struct {
		name       string
		attempts   int
		res        *models.PublishResult
		err        error
		wantStatus string
		check      func(t *testing.T, p *models.ScheduledPost)
	}{
		{
			name:       "success",
			attempts:   1,
			res:        &models.PublishResult{PostID: "p1", MediaID: "m1"},
			wantStatus: models.PostStatusCompleted,
			check: func(t *testing.T, p *models.ScheduledPost) {
				assert.Equal(t, "p1", p.PlatformPostID)
				assert.Equal(t, "m1", p.PlatformMediaID)
				assert.Equal(t, now, *p.CompletedAt)
				assert.Empty(t, p.Error)
			},
		},
		{
			name:       "manual fallback",
			attempts:   1,
			res:        &models.PublishResult{Manual: &models.ManualInstructions{Caption: "hi", Action: "post it"}},
			wantStatus: models.PostStatusManualRequired,
			check: func(t *testing.T, p *models.ScheduledPost) {
				require.NotNil(t, p.ManualInstructions)
				assert.Equal(t, "post it", p.ManualInstructions.Action)
				assert.Nil(t, p.CompletedAt)
			},
		},
		{
			name:       "transient retries",
			attempts:   1,
			err:        models.NewTransientError("create tweet", errors.New("status 500")),
			wantStatus: models.PostStatusScheduled,
			check: func(t *testing.T, p *models.ScheduledPost) {
				require.NotNil(t, p.NextAttemptAt)
				assert.Equal(t, now.Add(time.Minute), *p.NextAttemptAt)
				assert.Contains(t, p.Error, "status 500")
			},
		},
		{
			name:       "processing timeout retries",
			attempts:   2,
			err:        models.NewProcessingTimeoutError("media STATUS", models.ErrMediaProcessingTimeout),
			wantStatus: models.PostStatusScheduled,
		},
		{
			name:       "transient at max attempts fails",
			attempts:   3,
			err:        models.NewTransientError("create tweet", errors.New("status 500")),
			wantStatus: models.PostStatusFailed,
			check: func(t *testing.T, p *models.ScheduledPost) {
				assert.Equal(t, now, *p.FailedAt)
				assert.NotEmpty(t, p.Error)
			},
		},
		{
			name:       "auth fails immediately",
			attempts:   1,
			err:        models.NewAuthError("get token", models.ErrTokenExpiredNoRefresh),
			wantStatus: models.PostStatusFailed,
		},
		{
			name:       "validation fails immediately",
			attempts:   1,
			err:        models.NewValidationError("normalize image", models.ErrUnsupportedFormat),
			wantStatus: models.PostStatusFailed,
		},
		{
			name:       "empty result is retried",
			attempts:   1,
			wantStatus: models.PostStatusScheduled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := processingPost(tt.attempts)
			m.Finish(post, tt.res, tt.err, now, now)
			assert.Equal(t, tt.wantStatus, post.Status)
			assert.LessOrEqual(t, post.Attempts, 3)
			if tt.check != nil {
				tt.check(t, post)
			}
		})
	}
}

func TestStatusManager_OrphanedMedia(t *testing.T) {
	m := NewStatusManager(RetryPolicy{MaxAttempts: 3})
	post := processingPost(1)

	err := models.WithMediaID(models.NewTransientError("create tweet", errors.New("status 503")), "m-1")
	m.Finish(post, nil, err, time.Now(), time.Now())
	m.Finish(post, nil, err, time.Now(), time.Now())

	assert.Equal(t, []string{"m-1"}, post.OrphanedMediaIDs)
}

func TestStatusManager_RetryAnchoredAtTick(t *testing.T) {
	tick := time.Minute
	policy := DefaultRetryPolicy()
	m := NewStatusManager(policy)

	dueAt := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	finishedAt := dueAt.Add(50 * time.Second)

	post := processingPost(1)
	m.Finish(post, nil, models.NewTransientError("create tweet", errors.New("status 500")), finishedAt, dueAt)

	require.Equal(t, models.PostStatusScheduled, post.Status)
	require.NotNil(t, post.NextAttemptAt)
	assert.False(t, post.NextAttemptAt.After(dueAt.Add(tick)), "a slow attempt still retries on the next tick")
	assert.True(t, post.NextAttemptAt.After(dueAt))
}

func TestClaimSet(t *testing.T) {
	c := newClaimSet()
	assert.True(t, c.TryAcquire("a"))
	assert.False(t, c.TryAcquire("a"))
	assert.True(t, c.TryAcquire("b"))
	assert.Equal(t, 2, c.Len())

	c.Release("a")
	assert.True(t, c.TryAcquire("a"))
}
