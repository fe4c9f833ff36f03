package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"

	"github.com/i474232898/station-observations/internal/logger"
	"github.com/i474232898/station-observations/internal/observation"
)

// Collector is the part of observation.Service the scheduler drives.
type Collector interface {
	CollectTimeseries(ctx context.Context, q observation.TimeseriesQuery) (int, error)
	CollectArchive(ctx context.Context, q observation.ArchiveQuery) (int, error)
}

// Jobs lists the series collected on every run.
type Jobs struct {
	SynopticStations []string
	SynopticVars     []string
	UtahAQStations   []string
	UtahAQDatatype   string
}

// Scheduler periodically collects recent observations for configured stations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	collector Collector
	jobs      Jobs
	interval  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new Scheduler.
func New(jobs Jobs, interval time.Duration, collector Collector, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		collector: collector,
		jobs:      jobs,
		interval:  interval,
		log:       log.Named("scheduler"),
		now:       time.Now,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.jobs.SynopticStations) == 0 && len(s.jobs.UtahAQStations) == 0 {
		s.log.Info("no stations configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 15
	}

	_, err := s.scheduler.Every(minutes).Minutes().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce collects the most recent interval for every configured series.
// Series are collected one after another; a failing series is logged and
// does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	runID := uuid.NewString()
	log := s.log.With(logger.String("run_id", runID))

	end := s.now().UTC().Truncate(time.Minute)
	start := end.Add(-s.interval)
	log.Info("running collection job", logger.Time("start", start), logger.Time("end", end))

	if len(s.jobs.SynopticStations) > 0 {
		n, err := s.collector.CollectTimeseries(ctx, observation.TimeseriesQuery{
			Stations: s.jobs.SynopticStations,
			Start:    observation.At(start),
			End:      observation.At(end),
			Vars:     s.jobs.SynopticVars,
		})
		switch {
		case errors.Is(err, observation.ErrNoData):
			log.Info("no new timeseries data", logger.Strings("stations", s.jobs.SynopticStations))
		case err != nil:
			log.Error("timeseries collection failed",
				logger.Strings("stations", s.jobs.SynopticStations), logger.Error(err))
		default:
			log.Info("timeseries collected", logger.Int("rows", n))
		}
	}

	for _, stid := range s.jobs.UtahAQStations {
		n, err := s.collector.CollectArchive(ctx, observation.ArchiveQuery{
			Station:  stid,
			Start:    start,
			End:      end,
			Datatype: s.jobs.UtahAQDatatype,
		})
		if err != nil {
			log.Error("archive collection failed", logger.String("station", stid), logger.Error(err))
			continue
		}
		log.Info("archive collected", logger.String("station", stid), logger.Int("rows", n))
	}

	log.Info("completed collection job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
