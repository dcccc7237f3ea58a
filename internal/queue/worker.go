package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// NotificationWorker consumes manual post tasks and hands them to a sink.
type NotificationWorker struct {
	sink Notifier
}

func NewNotificationWorker(sink Notifier) *NotificationWorker {
	return &NotificationWorker{sink: sink}
}

func (w *NotificationWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeManualPostRequired, w.HandleManualPostTask)
}

func (w *NotificationWorker) HandleManualPostTask(ctx context.Context, task *asynq.Task) error {
	var ev ManualPostEvent
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		return fmt.Errorf("decode %s: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	return w.sink.NotifyManualPost(ctx, ev)
}
