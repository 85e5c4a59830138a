package backup

import (
	"context"
	"fmt"
	"log"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// SchedulerConfig configures automatic backups.
type SchedulerConfig struct {
	// Schedule is a cron expression for automatic snapshots. Empty disables
	// scheduled backups; retention still runs hourly.
	Schedule string
	// Retain is how many snapshots to keep when pruning. Zero or negative
	// disables retention.
	Retain int
}

// Scheduler runs automatic timestamped backups and retention pruning on
// cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	cfg     SchedulerConfig
}

// NewScheduler creates a scheduler driving the given manager.
func NewScheduler(manager *Manager, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		cfg:     cfg,
	}
}

// SetupJobs registers the backup and retention jobs.
func (s *Scheduler) SetupJobs() error {
	if s.cfg.Schedule != "" {
		_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
			snap, err := s.manager.Create(context.Background(), "")
			if err != nil {
				log.Printf("backup: scheduled backup failed: %v", err)
				return
			}
			log.Printf("backup: created %s (%s)", snap.FileName, humanize.Bytes(uint64(snap.SizeBytes)))
		})
		if err != nil {
			return fmt.Errorf("scheduling backups with %q: %w", s.cfg.Schedule, err)
		}
		log.Printf("backup: scheduled automatic backups: %s", s.cfg.Schedule)
	}

	if _, err := s.cron.AddFunc("15 * * * *", func() {
		if err := s.EnforceRetention(context.Background()); err != nil {
			log.Printf("backup: retention enforcement failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling retention enforcement: %w", err)
	}

	return nil
}

// Start begins the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts all scheduled jobs, waiting for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// EnforceRetention deletes the oldest snapshots beyond the retention count.
func (s *Scheduler) EnforceRetention(ctx context.Context) error {
	if s.cfg.Retain <= 0 {
		return nil
	}

	snapshots, err := s.manager.List(ctx)
	if err != nil {
		return err
	}
	if len(snapshots) <= s.cfg.Retain {
		return nil
	}

	// List is newest first; everything past the retention count goes.
	for _, snap := range snapshots[s.cfg.Retain:] {
		if err := s.manager.Delete(ctx, snap.FileName); err != nil {
			return fmt.Errorf("pruning %s: %w", snap.FileName, err)
		}
		log.Printf("backup: pruned %s (created %s)", snap.FileName, humanize.Time(snap.CreatedAt))
	}
	return nil
}
