package jobs

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"cardamage/internal/config"
	"cardamage/internal/models"
)

type StaleLister interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.Assessment, error)
}

const (
	backlogSpec = "30 * * * * *"
	jobTimeout  = 30 * time.Second
)

// Scheduler runs periodic housekeeping. It only reports; it never changes an
// assessment.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.JobsConfig
	stale  StaleLister
	queue  *redis.Client
	stream string
	log    zerolog.Logger
	now    func() time.Time
}

// NewScheduler builds the scheduler. queue may be nil, in which case the
// notification backlog is not reported.
func NewScheduler(cfg config.JobsConfig, stale StaleLister, queue *redis.Client, stream string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:   c,
		cfg:    cfg,
		stale:  stale,
		queue:  queue,
		stream: stream,
		log:    log,
		now:    time.Now,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Enabled {
		s.log.Info().Msg("background jobs disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.cfg.StaleSweepSpec, s.runStaleSweep); err != nil {
		return err
	}
	if s.queue != nil && s.stream != "" {
		if _, err := s.cron.AddFunc(backlogSpec, s.runBacklogReport); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs up to the deadline of ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runStaleSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.SweepStale(ctx); err != nil {
		s.log.Error().Err(err).Msg("stale sweep failed")
	}
}

// SweepStale logs assessments that have been processing for longer than
// the configured threshold and returns how many it found.
func (s *Scheduler) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StaleAfter)
	stale, err := s.stale.ListStale(ctx, cutoff, s.cfg.StaleLimit)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		s.log.Debug().Msg("no stale assessments")
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, a := range stale {
		ids = append(ids, a.ID)
	}
	s.log.Warn().
		Int("count", len(stale)).
		Strs("assessment_ids", ids).
		Dur("stale_after", s.cfg.StaleAfter).
		Msg("assessments still processing")
	return len(stale), nil
}

func (s *Scheduler) runBacklogReport() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.Backlog(ctx); err != nil {
		s.log.Error().Err(err).Msg("notification backlog report failed")
	}
}

// Backlog reports the length of the notification stream.
func (s *Scheduler) Backlog(ctx context.Context) (int64, error) {
	n, err := s.queue.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("stream", s.stream).Int64("length", n).Msg("notification backlog")
	return n, nil
}
