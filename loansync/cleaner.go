// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StartRetentionSweeper launches a background goroutine that permanently
// removes rows whose soft-delete timestamp is older than the retention
// window. This is the only hard-delete path in the backend; it runs outside
// the sync API so the audit trail survives for the full window. The sweeper
// stops when ctx is cancelled.
func (s *Service) StartRetentionSweeper(ctx context.Context, interval, retention time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = s.logger
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sweepExpired(ctx, retention); err != nil {
					logger.Warn("retention sweep failed", "error", err)
				}
			}
		}
	}()
}

func (s *Service) sweepExpired(ctx context.Context, retention time.Duration) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	cutoff := time.Now().Add(-retention)
	for _, collection := range s.config.Collections {
		tag, err := s.pool.Exec(ctx, fmt.Sprintf(`
			DELETE FROM %q.%q WHERE deleted_at IS NOT NULL AND deleted_at < $1
		`, s.config.Schema, collection), cutoff)
		if err != nil {
			return fmt.Errorf("failed to sweep %s: %w", collection, err)
		}
		if n := tag.RowsAffected(); n > 0 {
			s.logger.Info("purged expired soft-deleted rows", "collection", collection, "rows", n)
		}
	}
	return nil
}
