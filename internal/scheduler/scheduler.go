package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/corridorlabs/roamsight/internal/anomaly"
	"github.com/corridorlabs/roamsight/internal/clock"
	"github.com/corridorlabs/roamsight/internal/config"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	obsmetrics "github.com/corridorlabs/roamsight/internal/observability/metrics"
	"github.com/corridorlabs/roamsight/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Detection *config.DetectionConfigHolder
	EtlSvc    etldomain.Service
	EtlRepo   etldomain.Repository
	Anomaly   *anomaly.Service

	Limiter *ratelimit.ReprocessLimiter `optional:"true"`
	Config  Config                      `optional:"true"`
}

// Scheduler drives the two background loops: the ETL backfill sweep and
// the anomaly detection sweep. A tick that arrives while the previous run
// of the same job is still in flight is dropped, not queued.
type Scheduler struct {
	db        *gorm.DB
	log       *zap.Logger
	cfg       Config
	clock     clock.Clock
	detection *config.DetectionConfigHolder
	etlSvc    etldomain.Service
	etlRepo   etldomain.Repository
	anomaly   *anomaly.Service
	limiter   *ratelimit.ReprocessLimiter

	backfillBusy  atomic.Bool
	detectionBusy atomic.Bool
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Detection == nil || p.EtlSvc == nil || p.EtlRepo == nil || p.Anomaly == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:        p.DB,
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		clock:     p.Clock,
		detection: p.Detection,
		etlSvc:    p.EtlSvc,
		etlRepo:   p.EtlRepo,
		anomaly:   p.Anomaly,
		limiter:   p.Limiter,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.newJobRun(ctx, name)
	s.logJobStart(ctx, run)
	err := fn(ctx, run)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.ObserveJob(name, obsmetrics.OutcomeForError(err), time.Since(start))
	schedMetrics.AddBatchProcessed(name, run.processedCount)

	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	if s.isJobEnabled(obsmetrics.SchedulerJobBackfill) {
		err = errors.Join(err, s.runJob(ctx, obsmetrics.SchedulerJobBackfill, s.backfillJob))
	}
	if s.isJobEnabled(obsmetrics.SchedulerJobDetection) {
		err = errors.Join(err, s.runJob(ctx, obsmetrics.SchedulerJobDetection, s.detectionJob))
	}
	return err
}

// RunForever ticks the backfill and detection loops until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) {
	backfill := time.NewTicker(s.cfg.BackfillInterval)
	defer backfill.Stop()
	detection := time.NewTicker(s.cfg.DetectionInterval)
	defer detection.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-backfill.C:
			s.tick(ctx, obsmetrics.SchedulerJobBackfill, &s.backfillBusy, s.backfillJob)
		case <-detection.C:
			s.tick(ctx, obsmetrics.SchedulerJobDetection, &s.detectionBusy, s.detectionJob)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, name string, busy *atomic.Bool, fn func(ctx context.Context, run *jobRun) error) {
	if !s.isJobEnabled(name) {
		return
	}
	if !busy.CompareAndSwap(false, true) {
		obsmetrics.Scheduler().TickSkipped(name)
		s.log.Debug("tick skipped, previous run still in flight", zap.String("job", name))
		return
	}
	go func() {
		defer busy.Store(false)
		if err := s.runJob(ctx, name, fn); err != nil {
			s.log.Warn("scheduler run failed", zap.String("job", name), zap.Error(err))
		}
	}()
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// backfillJob drains stale files in batches until none remain. When redis
// is configured the sweep runs under a cluster-wide lock so only one node
// reprocesses at a time.
func (s *Scheduler) backfillJob(ctx context.Context, run *jobRun) error {
	if s.limiter != nil {
		release, ok, err := s.limiter.AcquireBackfillLock(ctx)
		if err != nil {
			return fmt.Errorf("acquire backfill lock: %w", err)
		}
		if !ok {
			s.logger(ctx).Debug("backfill lock held elsewhere, skipping sweep")
			return nil
		}
		defer release()
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		processed, err := s.etlSvc.Backfill(ctx, s.cfg.BackfillBatchSize)
		run.AddProcessed(processed)
		if err != nil {
			return err
		}
		if processed == 0 {
			return nil
		}
	}
}

// detectionJob runs the quality-warning check and then the anomaly sweep
// over every project active inside the lookback window. A failing check or
// project does not stop the rest.
func (s *Scheduler) detectionJob(ctx context.Context, run *jobRun) error {
	cfg := s.detection.Get()
	since := s.clock.Now().AddDate(0, 0, -cfg.LookbackDays)

	var jobErr error
	qualityRaised, err := s.anomaly.RunQuality(ctx, 0)
	run.AddProcessed(qualityRaised)
	if err != nil {
		run.IncError()
		s.logger(ctx).Warn("quality check failed", zap.Error(err))
		jobErr = errors.Join(jobErr, err)
	}

	projects, err := s.etlRepo.ActiveProjects(ctx, s.db, since)
	if err != nil {
		return errors.Join(jobErr, fmt.Errorf("list active projects: %w", err))
	}
	for _, projectID := range projects {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		raised, err := s.anomaly.RunProject(ctx, projectID)
		run.AddProcessed(raised)
		if err != nil {
			run.IncError()
			s.logger(ctx).Warn("project detection failed",
				zap.Int64("project_id", int64(projectID)),
				zap.Error(err),
			)
			jobErr = errors.Join(jobErr, err)
		}
	}
	return jobErr
}
