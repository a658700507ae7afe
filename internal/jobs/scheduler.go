package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"photokeeper/internal/config"
	"photokeeper/internal/gc"
)

// Scheduler drives the collector's two cycles: the frequent pending sweep
// and the infrequent orphan reconciliation. Each run gets its own
// cancellable context so shutdown interrupts a batch between entries.
type Scheduler struct {
	cron      *cron.Cron
	collector *gc.Collector
	cfg       config.GCConfig
	log       zerolog.Logger

	runCtx context.Context
	cancel context.CancelFunc
}

func NewScheduler(collector *gc.Collector, cfg config.GCConfig, log zerolog.Logger) *Scheduler {
	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		collector: collector,
		cfg:       cfg,
		log:       log,
		runCtx:    runCtx,
		cancel:    cancel,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.runSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ReconcileSchedule, s.runReconcile); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop cancels in-flight batches and waits briefly for running jobs.
func (s *Scheduler) Stop() {
	s.cancel()
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runSweep() {
	if err := s.collector.SweepPending(s.runCtx); err != nil && s.runCtx.Err() == nil {
		s.log.Error().Err(err).Msg("pending sweep failed")
	}
}

func (s *Scheduler) runReconcile() {
	if err := s.collector.ReconcileOrphans(s.runCtx); err != nil && s.runCtx.Err() == nil {
		s.log.Error().Err(err).Msg("orphan reconciliation failed")
	}
}
