package transfer

import (
	"time"

	"github.com/maheshrc27/postflow/internal/models"
)

// ScheduleRequest is the input of ScheduleService.SchedulePost.
type ScheduleRequest struct {
	Platform      models.Platform
	UserID        string
	Text          string
	Image         []byte
	ScheduledTime time.Time
}

type ScheduleResponse struct {
	JobID         string    `json:"jobId"`
	Platform      string    `json:"platform"`
	Status        string    `json:"status"`
	ScheduledTime time.Time `json:"scheduledTime"`
	ImageFormat   string    `json:"imageFormat,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
