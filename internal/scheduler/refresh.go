package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"earnings-tracker/internal/models"
	"earnings-tracker/internal/service"
)

// Syncer runs a bulk sync.
type Syncer interface {
	SyncAll(ctx context.Context, opts service.SyncOptions) (*models.SyncRun, error)
}

// RefreshJob refreshes every registered company. An interrupted or
// quota-stopped run is resumed rather than restarted.
type RefreshJob struct {
	ctx     context.Context
	syncer  Syncer
	timeout time.Duration
	running atomic.Bool
	log     zerolog.Logger
}

// RefreshConfig holds configuration for the refresh job
type RefreshConfig struct {
	// Context bounds every run; cancel it on shutdown.
	Context context.Context
	Syncer  Syncer
	// Timeout caps one run. Zero means no cap.
	Timeout time.Duration
	Log     zerolog.Logger
}

// NewRefreshJob creates a new refresh job
func NewRefreshJob(cfg RefreshConfig) *RefreshJob {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	return &RefreshJob{
		ctx:     ctx,
		syncer:  cfg.Syncer,
		timeout: cfg.Timeout,
		log:     cfg.Log.With().Str("job", "refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "refresh"
}

// Run executes one bulk sync. A tick that fires while the previous run is
// still going is skipped.
func (j *RefreshJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("Previous refresh still running; skipping")
		return nil
	}
	defer j.running.Store(false)

	ctx := j.ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	run, err := j.syncer.SyncAll(ctx, service.SyncOptions{})
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("processed", run.Processed).
		Int("total", run.Total).
		Int("failed", len(run.Failures)).
		Msg("Refresh finished")
	return nil
}
