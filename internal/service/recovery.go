package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRecoveryInterval    = time.Hour
	defaultRecoveryLimit       = 100
	defaultRecoveryConcurrency = 4
	defaultLocalReplayCooldown = 15 * time.Minute
)

// Replayer dispatches a rebuilt request as a new chain.
type Replayer interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error)
}

// ReplayGuard claims a failed row so it is replayed once per cooldown window.
type ReplayGuard interface {
	Acquire(ctx context.Context, logID string) (bool, error)
}

type RecoveryReport struct {
	Scanned   int `json:"scanned"`
	Replayed  int `json:"replayed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type RecoveryConfig struct {
	Interval    time.Duration
	Limit       int
	Concurrency int
	MaxAttempts int
}

// RecoveryLoop periodically replays FAILED rows whose retry count is still below the
// maximum. Each replay creates a new log row; the original row is never modified.
type RecoveryLoop struct {
	logs     repository.NotificationLogRepository
	replayer Replayer
	guard    ReplayGuard
	cfg      RecoveryConfig
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewRecoveryLoop(
	logs repository.NotificationLogRepository,
	replayer Replayer,
	guard ReplayGuard,
	cfg RecoveryConfig,
	logger *zap.Logger,
) (*RecoveryLoop, error) {
	if logs == nil {
		return nil, fmt.Errorf("notification log repository is required")
	}
	if replayer == nil {
		return nil, fmt.Errorf("replayer is required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("max attempts must be > 0")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRecoveryInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultRecoveryLimit
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultRecoveryConcurrency
	}
	if guard == nil {
		guard = NewMemoryReplayGuard(defaultLocalReplayCooldown)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RecoveryLoop{
		logs:     logs,
		replayer: replayer,
		guard:    guard,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (l *RecoveryLoop) SetMetrics(metrics *observability.Metrics) {
	l.metrics = metrics
}

func (l *RecoveryLoop) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Initial scan picks up rows left behind by a previous process.
	if _, err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
		l.logger.Error("recovery initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := l.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Error("recovery scan failed", zap.Error(err))
			}
		}
	}
}

// RunOnce replays one page of eligible rows. Per-row failures are logged and counted; only
// a failed scan query is returned as an error.
func (l *RecoveryLoop) RunOnce(ctx context.Context) (RecoveryReport, error) {
	rows, err := l.logs.ListRetryable(ctx, l.cfg.MaxAttempts, l.cfg.Limit)
	if err != nil {
		return RecoveryReport{}, fmt.Errorf("failed to list retryable notifications: %w", err)
	}

	var replayed, succeeded, failed, skipped atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)

	for i := range rows {
		row := rows[i]
		g.Go(func() error {
			logger := l.logger.With(zap.String("originalLogId", row.ID), zap.String("channel", row.Channel.String()))

			claimed, err := l.guard.Acquire(gctx, row.ID)
			if err != nil {
				logger.Warn("failed to claim notification for replay", zap.Error(err))
				skipped.Add(1)
				l.metrics.IncRecoveryReplay("skipped")
				return nil
			}
			if !claimed {
				skipped.Add(1)
				l.metrics.IncRecoveryReplay("skipped")
				return nil
			}

			replayed.Add(1)
			if _, err := l.replayer.Dispatch(gctx, row.ToRequest()); err != nil {
				failed.Add(1)
				l.metrics.IncRecoveryReplay("failed")
				logger.Warn("recovery replay failed", zap.Error(err))
				return nil
			}

			succeeded.Add(1)
			l.metrics.IncRecoveryReplay("succeeded")
			logger.Info("recovery replay succeeded")
			return nil
		})
	}
	_ = g.Wait()

	report := RecoveryReport{
		Scanned:   len(rows),
		Replayed:  int(replayed.Load()),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}
	if report.Scanned > 0 {
		l.logger.Info("recovery scan completed",
			zap.Int("scanned", report.Scanned),
			zap.Int("replayed", report.Replayed),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
		)
	}
	return report, nil
}

// MemoryReplayGuard is a process-local ReplayGuard for single-instance deployments.
type MemoryReplayGuard struct {
	mu       sync.Mutex
	claims   map[string]time.Time
	cooldown time.Duration
	now      func() time.Time
}

func NewMemoryReplayGuard(cooldown time.Duration) *MemoryReplayGuard {
	if cooldown <= 0 {
		cooldown = defaultLocalReplayCooldown
	}
	return &MemoryReplayGuard{
		claims:   make(map[string]time.Time),
		cooldown: cooldown,
		now:      time.Now,
	}
}

func (g *MemoryReplayGuard) Acquire(_ context.Context, logID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, expires := range g.claims {
		if !now.Before(expires) {
			delete(g.claims, id)
		}
	}

	if _, ok := g.claims[logID]; ok {
		return false, nil
	}
	g.claims[logID] = now.Add(g.cooldown)
	return true, nil
}
