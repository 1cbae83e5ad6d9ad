package core

// scheduler.go runs background maintenance for a long-lived Service.
//
// Currently it prunes run history: finished records older than
// PIPELINE_HISTORY_RETENTION are dropped every PIPELINE_PRUNE_INTERVAL.
// A prune that finds nothing to drop is logged at debug level only.

import (
	"context"
	"log/slog"
	"time"
)

// StartHistoryPruner prunes run history until ctx is cancelled. It prunes
// once on start, then every PruneInterval. It returns immediately when no
// retention is configured.
func (s *Service) StartHistoryPruner(ctx context.Context) {
	retention := s.cfg.HistoryRetention
	if retention <= 0 || s.cfg.PruneInterval <= 0 {
		return
	}
	slog.Info("history pruner started",
		"retention", retention.String(),
		"interval", s.cfg.PruneInterval.String(),
	)

	s.PruneHistory()

	ticker := time.NewTicker(s.cfg.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("history pruner stopped")
			return
		case <-ticker.C:
			s.PruneHistory()
		}
	}
}

// PruneHistory drops finished run records older than the configured
// retention and returns how many were dropped.
func (s *Service) PruneHistory() int {
	if s.cfg.HistoryRetention <= 0 {
		return 0
	}
	start := time.Now()
	dropped := s.history.Prune(s.now().Add(-s.cfg.HistoryRetention))
	if dropped == 0 {
		slog.Debug("history prune found nothing to drop")
		return 0
	}
	slog.Info("pruned run history",
		"records_dropped", dropped,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return dropped
}
