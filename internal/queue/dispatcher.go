package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/robfig/cron"
)

type DispatcherConfig struct {
	TickInterval  time.Duration
	Workers       int
	RatePerSecond float64
	Retry         RetryPolicy
}

// Dispatcher runs one tick loop per platform. A tick only enumerates due
// records; each record is executed on the platform's worker pool while this
// process holds a claim on it.
type Dispatcher struct {
	cfg       DispatcherConfig
	schedules repository.ScheduleRepository
	tokens    service.TokenService
	history   repository.PublishedPostRepository
	notifier  Notifier
	status    *StatusManager
	adapters  map[models.Platform]service.PlatformAdapter
	pools     map[models.Platform]*pool
	claims    *claimSet
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	ticks  sync.WaitGroup
}

func NewDispatcher(
	cfg DispatcherConfig,
	schedules repository.ScheduleRepository,
	tokens service.TokenService,
	history repository.PublishedPostRepository,
	notifier Notifier,
	logger *slog.Logger,
	adapters ...service.PlatformAdapter) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		schedules: schedules,
		tokens:    tokens,
		history:   history,
		notifier:  notifier,
		status:    NewStatusManager(cfg.Retry),
		adapters:  map[models.Platform]service.PlatformAdapter{},
		pools:     map[models.Platform]*pool{},
		claims:    newClaimSet(),
		logger:    logger,
		now:       time.Now,
	}

	for _, a := range adapters {
		d.adapters[a.Platform()] = a
		d.pools[a.Platform()] = newPool(cfg.Workers, cfg.RatePerSecond)
	}
	return d
}

// Tick submits every due record of platform that is not already claimed and
// returns how many were submitted.
func (d *Dispatcher) Tick(ctx context.Context, platform models.Platform) int {
	p, ok := d.pools[platform]
	if !ok {
		d.logger.Warn("no adapter registered", "platform", platform)
		return 0
	}

	tickAt := d.now()
	due, err := d.schedules.ListDue(ctx, platform, tickAt)
	if err != nil {
		d.logger.Error("failed to list due posts", "platform", platform, "error", err)
		return 0
	}

	submitted := 0
	for _, post := range due {
		key := repository.ScheduleKey(post.Platform, post.UserID, post.ID)
		if !d.claims.TryAcquire(key) {
			d.logger.Debug("post already in flight", "platform", platform, "job_id", post.ID)
			continue
		}

		post := post
		release := func() { d.claims.Release(key) }
		p.Submit(ctx, func(ctx context.Context) {
			defer release()
			d.process(ctx, post, tickAt)
		}, release)
		submitted++
	}

	if submitted > 0 {
		d.logger.Info("tick", "platform", platform, "due", len(due), "submitted", submitted)
	}
	return submitted
}

// Drain waits until every submitted record has been processed.
func (d *Dispatcher) Drain() {
	for _, p := range d.pools {
		p.Wait()
	}
}

// Start registers one tick entry per platform plus any extra entries and
// starts the scheduler.
func (d *Dispatcher) Start(ctx context.Context, extra map[string]func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cron != nil {
		return errors.New("dispatcher already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()

	spec := fmt.Sprintf("@every %s", d.cfg.TickInterval)
	for platform := range d.adapters {
		platform := platform
		if err := c.AddFunc(spec, func() { d.scheduledTick(ctx, platform) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s tick: %w", platform, err)
		}
	}
	for s, fn := range extra {
		if err := c.AddFunc(s, fn); err != nil {
			cancel()
			return fmt.Errorf("schedule %q: %w", s, err)
		}
	}

	c.Start()
	d.cron = c
	d.cancel = cancel
	d.logger.Info("dispatcher started", "tick_interval", d.cfg.TickInterval.String(), "platforms", len(d.adapters))
	return nil
}

// Stop halts the tick loops, cancels in-flight work and waits for it.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	c, cancel := d.cron, d.cancel
	d.cron, d.cancel = nil, nil
	d.mu.Unlock()

	if c == nil {
		return
	}
	c.Stop()
	cancel()
	d.ticks.Wait()
	d.Drain()
	d.logger.Info("dispatcher stopped")
}

// scheduledTick is the cron entry for a platform. It is a no-op once Stop
// has begun, and Stop waits for a tick already running before it drains the
// pools.
func (d *Dispatcher) scheduledTick(ctx context.Context, platform models.Platform) int {
	d.mu.Lock()
	if d.cron == nil {
		d.mu.Unlock()
		return 0
	}
	d.ticks.Add(1)
	d.mu.Unlock()
	defer d.ticks.Done()

	return d.Tick(ctx, platform)
}

func (d *Dispatcher) process(ctx context.Context, due *models.ScheduledPost, tickAt time.Time) {
	log := d.logger.With("platform", due.Platform, "job_id", due.ID)

	post, err := d.schedules.GetByID(ctx, due.Platform, due.UserID, due.ID)
	if err != nil {
		log.Error("failed to reload post", "error", err)
		return
	}
	if !post.IsDue(d.now()) {
		log.Debug("post no longer due", "status", post.Status)
		return
	}

	d.status.Begin(post, d.now())
	if err := d.schedules.Update(ctx, post); err != nil {
		if errors.Is(err, models.ErrVersionConflict) {
			log.Info("post claimed elsewhere", "error", err)
			return
		}
		log.Error("failed to mark post processing", "error", err)
		return
	}

	res, err := d.execute(ctx, post)

	// The outcome must be stored even when shutdown cancelled the attempt.
	ctx = context.WithoutCancel(ctx)

	d.status.Finish(post, res, err, d.now(), tickAt)
	if err := d.schedules.Update(ctx, post); err != nil {
		log.Error("failed to store outcome", "status", post.Status, "error", err)
		return
	}

	switch post.Status {
	case models.PostStatusCompleted:
		log.Info("post published", "attempts", post.Attempts, "platform_post_id", post.PlatformPostID)
		d.recordHistory(ctx, post)
	case models.PostStatusManualRequired:
		log.Warn("post requires manual publishing", "attempts", post.Attempts)
		if err := d.notifier.NotifyManualPost(ctx, NewManualPostEvent(post)); err != nil {
			log.Error("failed to emit manual post event", "error", err)
		}
	case models.PostStatusScheduled:
		log.Warn("post attempt failed, will retry", "attempts", post.Attempts, "next_attempt_at", post.NextAttemptAt, "error", post.Error)
	case models.PostStatusFailed:
		log.Error("post failed", "attempts", post.Attempts, "error", post.Error)
	}
}

func (d *Dispatcher) execute(ctx context.Context, post *models.ScheduledPost) (res *models.PublishResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter panic: %v", r)
		}
	}()

	adapter := d.adapters[post.Platform]

	token, err := d.tokens.GetValidToken(ctx, post.Platform, post.UserID)
	if err != nil {
		return nil, err
	}

	media, err := adapter.PrepareMedia(ctx, post)
	if err != nil {
		return nil, err
	}
	defer media.Release()

	return adapter.Publish(ctx, token, post, media)
}

func (d *Dispatcher) recordHistory(ctx context.Context, post *models.ScheduledPost) {
	if d.history == nil {
		return
	}

	publishedAt := d.now()
	if post.CompletedAt != nil {
		publishedAt = *post.CompletedAt
	}

	_, err := d.history.Create(ctx, &models.PublishedPost{
		JobID:           post.ID,
		UserID:          post.UserID,
		Platform:        post.Platform,
		Text:            post.Text,
		PlatformPostID:  post.PlatformPostID,
		PlatformMediaID: post.PlatformMediaID,
		Attempts:        post.Attempts,
		PublishedAt:     publishedAt,
	})
	if err != nil {
		d.logger.Error("failed to record published post", "job_id", post.ID, "error", err)
	}
}
