// Copyright (c) 2025-2026 Fernando "ferabreu" Mees Abreu
// SPDX-License-Identifier: GPL-2.0-only

// Package scheduler runs the periodic thumbnail backfill sweep.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ferabreu/classifieds-go/internal/listing"
)

// Scheduler runs background jobs on cron schedules.
type Scheduler struct {
	cron     *cron.Cron
	listings *listing.Coordinator
	logger   *slog.Logger
}

// New creates a scheduler instance.
func New(listings *listing.Coordinator, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		listings: listings,
		logger:   logger,
	}
}

// Start registers the thumbnail backfill job on the given cron spec
// (for example "@hourly") and starts the scheduler.
func (s *Scheduler) Start(backfillSpec string) error {
	_, err := s.cron.AddFunc(backfillSpec, func() {
		created, err := s.listings.BackfillThumbnails(context.Background())
		if err != nil {
			s.logger.Error("thumbnail backfill sweep failed", "error", err)
			return
		}
		if created > 0 {
			s.logger.Info("thumbnail backfill sweep finished", "created", created)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()), "backfill_schedule", backfillSpec)
	return nil
}

// Stop gracefully stops the scheduler, waiting for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}
