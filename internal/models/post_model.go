package models

import (
	"fmt"
	"time"
)

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
)

// Platforms lists every platform the dispatcher runs a tick loop for.
var Platforms = []Platform{PlatformInstagram, PlatformTwitter, PlatformFacebook}

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformInstagram, PlatformTwitter, PlatformFacebook:
		return p, nil
	}
	return "", fmt.Errorf("unsupported platform %q", s)
}

type ImageFormat string

const (
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatPNG  ImageFormat = "png"
)

func (f ImageFormat) MIME() string {
	if f == ImageFormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

func (f ImageFormat) Extension() string {
	if f == ImageFormatPNG {
		return "png"
	}
	return "jpg"
}

const (
	PostStatusScheduled      = "scheduled"
	PostStatusProcessing     = "processing"
	PostStatusCompleted      = "completed"
	PostStatusFailed         = "failed"
	PostStatusManualRequired = "manual_required"
)

// MaxAttempts is the default number of execution attempts per job.
const MaxAttempts = 3

type ManualInstructions struct {
	Caption  string `json:"caption"`
	ImageRef string `json:"imageRef,omitempty"`
	Action   string `json:"action"`
}

// ScheduledPost is the durable record of one publish job. Records are stored
// as JSON documents at scheduled/<platform>/<userId>/<jobId>.json.
type ScheduledPost struct {
	ID            string      `json:"id"`
	UserID        string      `json:"userId"`
	Platform      Platform    `json:"platform"`
	Text          string      `json:"text"`
	ImageKey      string      `json:"imageKey,omitempty"`
	ImageFormat   ImageFormat `json:"imageFormat,omitempty"`
	ScheduledTime time.Time   `json:"scheduledTime"`
	Status        string      `json:"status"`
	Attempts      int         `json:"attempts"`
	Version       int64       `json:"version"`

	CreatedAt     time.Time  `json:"createdAt"`
	LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
	NextAttemptAt *time.Time `json:"nextAttemptAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	FailedAt      *time.Time `json:"failedAt,omitempty"`

	Error              string              `json:"error,omitempty"`
	PlatformPostID     string              `json:"platformPostId,omitempty"`
	PlatformMediaID    string              `json:"platformMediaId,omitempty"`
	OrphanedMediaIDs   []string            `json:"orphanedMediaIds,omitempty"`
	ManualInstructions *ManualInstructions `json:"manualInstructions,omitempty"`
}

// IsTerminal reports whether no further automatic transition will happen.
// manual_required is terminal by convention.
func (p *ScheduledPost) IsTerminal() bool {
	switch p.Status {
	case PostStatusCompleted, PostStatusFailed, PostStatusManualRequired:
		return true
	}
	return false
}

// IsDue reports whether the record should be picked up by a tick at now.
func (p *ScheduledPost) IsDue(now time.Time) bool {
	if p.Status != PostStatusScheduled || p.ScheduledTime.After(now) {
		return false
	}
	return p.NextAttemptAt == nil || !p.NextAttemptAt.After(now)
}

// MediaRef is the prepared media handed from an adapter's PrepareMedia to its
// Publish step. Release must be called once publishing is over.
type MediaRef struct {
	Bytes  []byte
	Format ImageFormat
	URL    string

	release func()
}

func NewMediaRef(data []byte, format ImageFormat, url string, release func()) *MediaRef {
	return &MediaRef{Bytes: data, Format: format, URL: url, release: release}
}

func (m *MediaRef) Release() {
	if m == nil || m.release == nil {
		return
	}
	m.release()
	m.release = nil
}

type PublishResult struct {
	PostID  string
	MediaID string
	Manual  *ManualInstructions
}
