package background

import (
	"context"
	"log/slog"
	"time"
)

// AttemptCleaner purges stale login attempt rows
type AttemptCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// CleanupManager periodically removes stale login attempt history from the
// database. Rows under an active lock are never touched; the store keeps
// them until the lock expires.
type CleanupManager struct {
	guard    AttemptCleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(guard AttemptCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		guard:    guard,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.guard.Cleanup(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup stale login attempts", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("stale login attempt cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
