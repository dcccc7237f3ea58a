package queue

import (
	"errors"
	"slices"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

var errEmptyResult = errors.New("adapter returned no result")

// StatusManager owns the job state machine:
//
//	scheduled -> processing -> completed | manual_required | scheduled | failed
//
// The only backward edge is processing -> scheduled for a retryable error
// while attempts < MaxAttempts.
type StatusManager struct {
	policy RetryPolicy
}

func NewStatusManager(policy RetryPolicy) *StatusManager {
	return &StatusManager{policy: policy}
}

// Begin moves a due record into processing and counts the attempt.
func (m *StatusManager) Begin(post *models.ScheduledPost, now time.Time) {
	post.Status = models.PostStatusProcessing
	post.Attempts++
	post.LastAttemptAt = &now
	post.NextAttemptAt = nil
}

// Finish records the outcome of an attempt started with Begin at now. A retry
// is scheduled relative to dueAt, the tick that picked the record up, so
// time spent publishing does not push it past the following tick.
func (m *StatusManager) Finish(post *models.ScheduledPost, res *models.PublishResult, err error, now, dueAt time.Time) {
	if err == nil && res != nil && res.Manual != nil {
		post.Status = models.PostStatusManualRequired
		post.ManualInstructions = res.Manual
		post.Error = ""
		return
	}

	if err == nil && res != nil {
		post.Status = models.PostStatusCompleted
		post.CompletedAt = &now
		post.PlatformPostID = res.PostID
		post.PlatformMediaID = res.MediaID
		post.Error = ""
		return
	}

	if err == nil {
		err = errEmptyResult
	}

	if id := models.OrphanedMediaID(err); id != "" && !slices.Contains(post.OrphanedMediaIDs, id) {
		post.OrphanedMediaIDs = append(post.OrphanedMediaIDs, id)
	}
	post.Error = err.Error()

	if m.policy.ShouldRetry(err, post.Attempts) {
		next := dueAt.Add(m.policy.Delay(models.KindOf(err), post.Attempts))
		post.Status = models.PostStatusScheduled
		post.NextAttemptAt = &next
		return
	}

	post.Status = models.PostStatusFailed
	post.FailedAt = &now
}
