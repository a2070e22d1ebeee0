package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/clientdata"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/domain"
	"github.com/Jailtonfonseca/rebalanceamento-binance/internal/reliability"
)

// Rebalancer is the orchestrator surface the scheduled job triggers. The
// cron trigger and the manual HTTP trigger call the identical entry point.
type Rebalancer interface {
	RunRebalance(ctx context.Context, dryRunOverride *bool) (*domain.RunRecord, error)
}

// RebalanceJob triggers a scheduled rebalance run using the configured
// dry-run setting.
type RebalanceJob struct {
	orchestrator Rebalancer
	timeout      time.Duration
	log          zerolog.Logger
}

// NewRebalanceJob creates the periodic rebalance job.
func NewRebalanceJob(orchestrator Rebalancer, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		orchestrator: orchestrator,
		timeout:      10 * time.Minute,
		log:          log.With().Str("job", "rebalance").Logger(),
	}
}

func (j *RebalanceJob) Name() string { return "rebalance" }

func (j *RebalanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	record, err := j.orchestrator.RunRebalance(ctx, nil)
	if errors.Is(err, domain.ErrRunInProgress) {
		// A manual run beat us to it; the next tick will try again.
		j.log.Info().Msg("Scheduled rebalance skipped, run already in progress")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", record.RunID).
		Str("status", string(record.Status)).
		Msg("Scheduled rebalance finished")
	return nil
}

// CacheCleanupJob purges expired entries from the client data cache.
type CacheCleanupJob struct {
	cache *clientdata.Repository
	log   zerolog.Logger
}

// NewCacheCleanupJob creates the cache maintenance job.
func NewCacheCleanupJob(cache *clientdata.Repository, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cache: cache,
		log:   log.With().Str("job", "cache_cleanup").Logger(),
	}
}

func (j *CacheCleanupJob) Name() string { return "cache_cleanup" }

func (j *CacheCleanupJob) Run() error {
	deleted, err := j.cache.DeleteAllExpired()
	if err != nil {
		return err
	}

	total := int64(0)
	for _, n := range deleted {
		total += n
	}
	j.log.Info().Int64("deleted", total).Msg("Expired cache entries purged")
	return nil
}

// BackupJob creates and uploads a database backup, then rotates old archives.
type BackupJob struct {
	backup  *reliability.BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates the daily backup job.
func NewBackupJob(backup *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup:  backup,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

func (j *BackupJob) Name() string { return "backup" }

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.backup.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	return j.backup.RotateOldBackups(ctx)
}
