package queue

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// pool runs submitted tasks with bounded concurrency and paced starts.
type pool struct {
	sem     chan struct{}
	limiter *rate.Limiter
	wg      sync.WaitGroup
}

func newPool(workers int, perSecond float64) *pool {
	if workers < 1 {
		workers = 1
	}

	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}

	return &pool{
		sem:     make(chan struct{}, workers),
		limiter: rate.NewLimiter(limit, workers),
	}
}

// Submit never blocks the caller. The task is dropped if ctx ends before a
// slot frees up.
func (p *pool) Submit(ctx context.Context, task func(ctx context.Context), dropped func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			dropped()
			return
		}
		defer func() { <-p.sem }()

		if err := p.limiter.Wait(ctx); err != nil {
			dropped()
			return
		}
		task(ctx)
	}()
}

func (p *pool) Wait() {
	p.wg.Wait()
}
