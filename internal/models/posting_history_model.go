package models

import "time"

// PublishedPost is the audit record written after a job completes.
type PublishedPost struct {
	ID              int64     `db:"id" json:"id"`
	JobID           string    `db:"job_id" json:"jobId"`
	UserID          string    `db:"user_id" json:"userId"`
	Platform        Platform  `db:"platform" json:"platform"`
	Text            string    `db:"text" json:"text"`
	PlatformPostID  string    `db:"platform_post_id" json:"platformPostId"`
	PlatformMediaID string    `db:"platform_media_id" json:"platformMediaId,omitempty"`
	Attempts        int       `db:"attempts" json:"attempts"`
	PublishedAt     time.Time `db:"published_at" json:"publishedAt"`
}
