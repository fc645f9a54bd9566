package reservations

import (
	"context"
	"time"

	"summitpass/pkg/logger"
)

// SweepJob periodically expires stale reservations and releases their
// stock. Each per-reservation transition is conditional, so overlapping
// runs cannot double-release.
type SweepJob struct {
	service  Service
	interval time.Duration
	log      *logger.Logger
	done     chan struct{}
}

// NewSweepJob creates a new sweep job
func NewSweepJob(service Service, interval time.Duration, log *logger.Logger) *SweepJob {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &SweepJob{
		service:  service,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or ctx is cancelled.
func (j *SweepJob) Start(ctx context.Context) {
	go j.run(ctx)
	j.log.InfoWithContext(ctx, "Reservation sweep job started", map[string]interface{}{
		"interval": j.interval.String(),
	})
}

// Stop stops the sweep loop.
func (j *SweepJob) Stop() {
	close(j.done)
}

func (j *SweepJob) run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.sweep(ctx)
		case <-j.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (j *SweepJob) sweep(ctx context.Context) {
	count, err := j.service.SweepExpired(ctx)
	if err != nil {
		j.log.ErrorWithContext(ctx, "Reservation sweep failed", err, nil)
		return
	}
	if count > 0 {
		j.log.LogReservationsSwept(ctx, count)
	}
}
