package sync

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"eduai-sync-service/internal/config"
	"eduai-sync-service/internal/logger"
)

// Scheduler fires periodic drains as a backstop for missed connectivity
// transitions. The engine's lock makes an overlapping trigger a no-op.
type Scheduler struct {
	cfg     config.SchedulerConfig
	engine  *Engine
	cron    *cron.Cron
	entryID cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, engine *Engine) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		engine: engine,
		cron:   cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerDrain()
	})

	if err != nil {
		logger.Log.Error("Failed to schedule drain job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerDrain() {
	if s.engine.Syncing() {
		logger.Log.Info("Drain already running, skipping scheduled run")
		return
	}

	result := s.engine.Drain(context.Background())
	if result.Ran && result.Synced+result.Failed > 0 {
		logger.Log.Info("Scheduled drain finished",
			zap.Int("synced", result.Synced),
			zap.Int("failed", result.Failed),
		)
	}
}
