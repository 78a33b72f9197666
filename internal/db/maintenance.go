package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/RollupIndexor/internal/logger"
	"github.com/goran-ethernal/RollupIndexor/pkg/config"
)

// Maintainer checkpoints the WAL and vacuums the database in the background.
// Writers hold an operation lock while they write; maintenance takes the lock
// exclusively, so it only runs between write transactions.
type Maintainer struct {
	db     *sql.DB
	config *config.MaintenanceConfig
	log    *logger.Logger

	// readers are write transactions, the writer is maintenance
	opLock sync.RWMutex
}

// NewMaintainer creates a maintainer. A nil config disables background runs
// but the operation lock still works.
func NewMaintainer(database *sql.DB, cfg *config.MaintenanceConfig, log *logger.Logger) *Maintainer {
	return &Maintainer{
		db:     database,
		config: cfg,
		log:    log,
	}
}

// AcquireOperationLock acquires a shared lock for a database operation and
// returns the function that releases it.
func (m *Maintainer) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

// Run performs periodic maintenance until ctx is cancelled. Failures are
// logged and retried on the next tick.
func (m *Maintainer) Run(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		return nil
	}

	if m.config.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnf("Startup maintenance failed: %v", err)
		}
	}

	ticker := time.NewTicker(m.config.CheckInterval.Duration)
	defer ticker.Stop()

	m.log.Infof("Background maintenance started - interval: %v, checkpoint mode: %s",
		m.config.CheckInterval.Duration, m.config.WALCheckpointMode)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil {
				m.log.Warnf("Periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance checkpoints the WAL and runs VACUUM while holding the
// operation lock exclusively.
func (m *Maintainer) RunMaintenance(ctx context.Context) error {
	start := time.Now()
	MaintenanceRunsInc()

	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	before, err := m.size(ctx)
	if err != nil {
		m.log.Warnf("Failed to get initial DB size: %v", err)
	}

	var maintenanceErr error
	if err := m.walCheckpoint(ctx); err != nil {
		maintenanceErr = fmt.Errorf("WAL checkpoint failed: %w", err)
	}
	if err := m.vacuum(ctx); err != nil && maintenanceErr == nil {
		maintenanceErr = fmt.Errorf("VACUUM failed: %w", err)
	}

	MaintenanceDurationLog(time.Since(start))
	if maintenanceErr != nil {
		MaintenanceErrorInc()
		return maintenanceErr
	}
	MaintenanceSuccessInc()

	after, err := m.size(ctx)
	if err != nil {
		m.log.Warnf("Failed to get final DB size: %v", err)
		return nil
	}
	DBSizeLog(after)

	m.log.Infow("maintenance completed",
		"duration", time.Since(start),
		"size_bytes", after,
		"reclaimed_bytes", max(before-after, 0),
	)
	return nil
}

func (m *Maintainer) walCheckpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to check journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return nil
	}

	checkpointMode := "TRUNCATE"
	if m.config != nil && m.config.WALCheckpointMode != "" {
		checkpointMode = m.config.WALCheckpointMode
	}

	var busy, logFrames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", checkpointMode)
	if err := m.db.QueryRowContext(ctx, query).Scan(&busy, &logFrames, &checkpointed); err != nil {
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}
	WALCheckpointInc(strings.ToLower(checkpointMode))

	if busy > 0 {
		m.log.Warnf("WAL checkpoint encountered %d busy pages (some pages not checkpointed)", busy)
	}
	return nil
}

func (m *Maintainer) vacuum(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("cannot vacuum: database is locked (retry later)")
		}
		return err
	}
	VacuumRunsInc()
	return nil
}

// size returns the database size in bytes as reported by SQLite.
func (m *Maintainer) size(ctx context.Context) (int64, error) {
	var pages, pageSize int64
	if err := m.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pages); err != nil {
		return 0, err
	}
	if err := m.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pages * pageSize, nil
}
