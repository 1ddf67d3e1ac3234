package maintenance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/Clark-Hu/comment-ratings/internal/ratings"
)

// Recomputer rebuilds every aggregate of one rating field.
type Recomputer interface {
	RecomputeAll(ctx context.Context, entity *ratings.EntityType, field *ratings.Field) (int, error)
}

// Scheduler periodically recomputes the aggregates of every field of the
// registered entity types, repairing drift left by out-of-band vote changes.
type Scheduler struct {
	recomputer Recomputer
	entities   []*ratings.EntityType
	logger     *log.Logger
	timeout    time.Duration

	cron    *cron.Cron
	running sync.Mutex
}

// Options tunes a Scheduler.
type Options struct {
	// Timeout bounds one pass over all fields. Zero disables the bound.
	Timeout time.Duration
	Logger  *log.Logger
}

// NewScheduler constructs a Scheduler for entities.
func NewScheduler(r Recomputer, entities []*ratings.EntityType, opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		recomputer: r,
		entities:   entities,
		logger:     logger,
		timeout:    opts.Timeout,
		cron:       cron.New(),
	}
}

// Start registers the recompute job on schedule (cron syntax with a seconds
// field) and starts the cron runner.
func (s *Scheduler) Start(schedule string) error {
	err := s.cron.AddFunc(schedule, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			s.logger.Printf("maintenance: recompute: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule recompute %q: %w", schedule, err)
	}
	s.logger.Printf("maintenance: recompute scheduled (%s)", schedule)
	s.cron.Start()
	return nil
}

// Stop halts the cron runner. A pass already running is not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// RunOnce recomputes every field once and returns the number of targets
// processed. Overlapping passes are skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if !s.running.TryLock() {
		s.logger.Println("maintenance: previous recompute still running, skipping")
		return 0, nil
	}
	defer s.running.Unlock()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	total := 0
	for _, entity := range s.entities {
		for _, field := range entity.Fields() {
			n, err := s.recomputer.RecomputeAll(ctx, entity, field)
			total += n
			if err != nil {
				return total, fmt.Errorf("%s.%s: %w", entity.Name(), field.Name(), err)
			}
		}
	}
	s.logger.Printf("maintenance: recomputed %d aggregate(s) in %s", total, time.Since(start).Round(time.Millisecond))
	return total, nil
}
