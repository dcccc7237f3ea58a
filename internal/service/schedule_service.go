package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/storage"
	"github.com/maheshrc27/postflow/internal/transfer"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type ScheduleService interface {
	SchedulePost(ctx context.Context, req *transfer.ScheduleRequest) (*models.ScheduledPost, error)
	Get(ctx context.Context, platform models.Platform, userID, id string) (*models.ScheduledPost, error)
	List(ctx context.Context, platform models.Platform, userID string) ([]*models.ScheduledPost, error)
	Cancel(ctx context.Context, platform models.Platform, userID, id string) error
	History(ctx context.Context, platform models.Platform, userID string) ([]*models.PublishedPost, error)
}

type scheduleService struct {
	store     storage.BlobStore
	schedules repository.ScheduleRepository
	published repository.PublishedPostRepository
	now       func() time.Time
}

func NewScheduleService(
	store storage.BlobStore,
	schedules repository.ScheduleRepository,
	published repository.PublishedPostRepository) ScheduleService {
	return &scheduleService{
		store:     store,
		schedules: schedules,
		published: published,
		now:       time.Now,
	}
}

// SchedulePost validates req, normalizes its image and stores a new record
// in the scheduled state. Nothing is stored when validation fails.
func (s *scheduleService) SchedulePost(ctx context.Context, req *transfer.ScheduleRequest) (*models.ScheduledPost, error) {
	if err := s.validate(req); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	var img *NormalizedImage
	if len(req.Image) > 0 {
		var err error
		if img, err = NormalizeImage(req.Image); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
	}

	now := s.now().UTC()
	jobID, err := utils.NewJobID(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate job id: %w", err)
	}

	post := &models.ScheduledPost{
		ID:            jobID,
		UserID:        req.UserID,
		Platform:      req.Platform,
		Text:          req.Text,
		ScheduledTime: req.ScheduledTime.UTC(),
		Status:        models.PostStatusScheduled,
		Attempts:      0,
		CreatedAt:     now,
	}

	if img != nil {
		post.ImageKey = repository.ImageKey(post.Platform, post.UserID, post.ID, img.Format)
		post.ImageFormat = img.Format
		if err := s.store.Put(ctx, post.ImageKey, img.Bytes, img.MIME()); err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
	}

	if err := s.schedules.Create(ctx, post); err != nil {
		if post.ImageKey != "" {
			_ = s.store.Delete(ctx, post.ImageKey)
		}
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	slog.Info("post scheduled", "platform", post.Platform, "job_id", post.ID, "scheduled_time", post.ScheduledTime)
	return post, nil
}

func (s *scheduleService) validate(req *transfer.ScheduleRequest) error {
	if req == nil {
		return models.NewValidationError("schedule post", errors.New("request is nil"))
	}
	if _, err := models.ParsePlatform(string(req.Platform)); err != nil {
		return models.NewValidationError("schedule post", err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return models.NewValidationError("schedule post", errors.New("user id is required"))
	}
	if strings.TrimSpace(req.Text) == "" && len(req.Image) == 0 {
		return models.NewValidationError("schedule post", errors.New("text or image is required"))
	}
	if req.Platform == models.PlatformInstagram && len(req.Image) == 0 {
		return models.NewValidationError("schedule post", errors.New("instagram posts require an image"))
	}
	if !req.ScheduledTime.After(s.now()) {
		return models.NewValidationError("schedule post", errors.New("scheduled time must be in the future"))
	}
	return nil
}

func (s *scheduleService) Get(ctx context.Context, platform models.Platform, userID, id string) (*models.ScheduledPost, error) {
	return s.schedules.GetByID(ctx, platform, userID, id)
}

func (s *scheduleService) List(ctx context.Context, platform models.Platform, userID string) ([]*models.ScheduledPost, error) {
	return s.schedules.ListByUserID(ctx, platform, userID)
}

// Cancel removes a post that has not been picked up yet.
func (s *scheduleService) Cancel(ctx context.Context, platform models.Platform, userID, id string) error {
	post, err := s.schedules.GetByID(ctx, platform, userID, id)
	if err != nil {
		return err
	}
	if post.Status != models.PostStatusScheduled {
		return fmt.Errorf("cancel %s in status %s: %w", id, post.Status, models.ErrNotCancelable)
	}
	return s.schedules.Remove(ctx, post)
}

func (s *scheduleService) History(ctx context.Context, platform models.Platform, userID string) ([]*models.PublishedPost, error) {
	return s.published.ListByUserID(ctx, platform, userID)
}
