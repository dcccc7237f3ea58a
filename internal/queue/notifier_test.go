package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ManualPostEvent
}

func (r *recordingNotifier) NotifyManualPost(ctx context.Context, ev ManualPostEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingNotifier) Events() []ManualPostEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ManualPostEvent(nil), r.events...)
}

func manualPost() *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:            "sched_1_abcdef",
		UserID:        "u1",
		Platform:      models.PlatformFacebook,
		Text:          "hello",
		ImageKey:      "scheduled/facebook/u1/sched_1_abcdef_image.jpg",
		ScheduledTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
		Status:        models.PostStatusManualRequired,
		ManualInstructions: &models.ManualInstructions{
			Caption:  "hello",
			ImageRef: "scheduled/facebook/u1/sched_1_abcdef_image.jpg",
			Action:   "post it yourself",
		},
	}
}

func TestNewManualPostTask(t *testing.T) {
	task, err := NewManualPostTask(NewManualPostEvent(manualPost()))
	require.NoError(t, err)
	assert.Equal(t, TaskTypeManualPostRequired, task.Type())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "manual_post_required", payload["event"])
	assert.Equal(t, "facebook", payload["platform"])
	assert.Equal(t, "sched_1_abcdef", payload["jobId"])
	assert.Equal(t, "hello", payload["caption"])
	assert.Equal(t, "scheduled/facebook/u1/sched_1_abcdef_image.jpg", payload["imageRef"])
	assert.Equal(t, "2025-01-01T12:00:00Z", payload["scheduledTime"])
	assert.Equal(t, "post it yourself", payload["instructions"])
}

func TestNotificationWorker(t *testing.T) {
	sink := &recordingNotifier{}
	worker := NewNotificationWorker(sink)

	task, err := NewManualPostTask(NewManualPostEvent(manualPost()))
	require.NoError(t, err)
	require.NoError(t, worker.HandleManualPostTask(context.Background(), task))

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "sched_1_abcdef", events[0].JobID)

	err = worker.HandleManualPostTask(context.Background(), asynq.NewTask(TaskTypeManualPostRequired, []byte("{")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, n.NotifyManualPost(context.Background(), NewManualPostEvent(manualPost())))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "manual post required", entry["msg"])
	assert.Equal(t, "sched_1_abcdef", entry["job_id"])
	assert.Equal(t, "WARN", entry["level"])
}
