package background

import (
	"context"
	"log/slog"
	"time"
)

// TokenCleaner is the repository surface the cleanup loop needs.
type TokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// CleanupManager periodically nulls out expired verification and reset
// tokens so stale hashes do not linger in storage.
type CleanupManager struct {
	accounts TokenCleaner
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

func NewCleanupManager(accounts TokenCleaner, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		accounts: accounts,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. Runs once immediately, then on
// every tick until stopped or the context ends.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

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

	rows, err := cm.accounts.CleanupExpiredTokens(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clean up expired tokens", slog.Any("error", err))
		return
	}

	if rows > 0 {
		cm.logger.Info("expired token cleanup completed", slog.Int64("rows_touched", rows))
	}
}

// Stop signals the cleanup manager to stop.
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
