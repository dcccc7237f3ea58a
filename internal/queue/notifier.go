package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/postflow/internal/models"
)

const (
	TaskTypeManualPostRequired = "notify:manual_post_required"
	QueueNotifications         = "notifications"

	EventManualPostRequired = "manual_post_required"
)

// ManualPostEvent tells the user-facing surface that a job needs to be
// posted by hand.
type ManualPostEvent struct {
	Event         string          `json:"event"`
	Platform      models.Platform `json:"platform"`
	JobID         string          `json:"jobId"`
	UserID        string          `json:"userId"`
	Caption       string          `json:"caption"`
	ImageRef      string          `json:"imageRef,omitempty"`
	ScheduledTime time.Time       `json:"scheduledTime"`
	Instructions  string          `json:"instructions"`
}

func NewManualPostEvent(post *models.ScheduledPost) ManualPostEvent {
	ev := ManualPostEvent{
		Event:         EventManualPostRequired,
		Platform:      post.Platform,
		JobID:         post.ID,
		UserID:        post.UserID,
		Caption:       post.Text,
		ImageRef:      post.ImageKey,
		ScheduledTime: post.ScheduledTime,
	}
	if mi := post.ManualInstructions; mi != nil {
		ev.Caption = mi.Caption
		ev.ImageRef = mi.ImageRef
		ev.Instructions = mi.Action
	}
	return ev
}

type Notifier interface {
	NotifyManualPost(ctx context.Context, ev ManualPostEvent) error
}

func NewManualPostTask(ev ManualPostEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeManualPostRequired, payload), nil
}

type asynqNotifier struct {
	client *asynq.Client
}

// NewAsynqNotifier enqueues events on the notifications queue. The job id is
// the task id, so a repeated event for the same job is not enqueued twice.
func NewAsynqNotifier(client *asynq.Client) Notifier {
	return &asynqNotifier{client: client}
}

func (n *asynqNotifier) NotifyManualPost(ctx context.Context, ev ManualPostEvent) error {
	task, err := NewManualPostTask(ev)
	if err != nil {
		return err
	}

	info, err := n.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(TaskTypeManualPostRequired+":"+ev.JobID),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		slog.Info(err.Error())
		return err
	}

	slog.Info("manual post notification enqueued", "job_id", ev.JobID, "task_id", info.ID)
	return nil
}

type logNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier writes events to the log. Used when no Redis is configured
// and as the final sink of the notification worker.
func NewLogNotifier(logger *slog.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) NotifyManualPost(ctx context.Context, ev ManualPostEvent) error {
	n.logger.LogAttrs(ctx, slog.LevelWarn, "manual post required",
		slog.String("event", ev.Event),
		slog.String("platform", string(ev.Platform)),
		slog.String("job_id", ev.JobID),
		slog.String("user_id", ev.UserID),
		slog.String("image_ref", ev.ImageRef),
		slog.Time("scheduled_time", ev.ScheduledTime),
		slog.String("instructions", ev.Instructions),
	)
	return nil
}
