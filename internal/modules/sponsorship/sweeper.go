package sponsorship

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"parnass/internal/domain"
	"parnass/internal/events"
)

// SweeperConfig controls the background expiry pass.
type SweeperConfig struct {
	Interval  time.Duration // default: 10m
	BatchSize int           // default: 200
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{Interval: 10 * time.Minute, BatchSize: 200}
}

// SweepStats describes the sweeper's activity since start.
type SweepStats struct {
	Runs      int64     `json:"runs"`
	Expired   int64     `json:"expired"`
	LastRun   time.Time `json:"lastRun"`
	LastError string    `json:"lastError,omitempty"`
}

// Sweeper expires reservations whose bucket has elapsed. Every expiry is a
// compare-and-swap, so overlapping passes never transition a reservation twice.
type Sweeper struct {
	svc *Service
	cfg SweeperConfig

	mu    sync.Mutex
	stats SweepStats
}

func NewSweeper(svc *Service, cfg SweeperConfig) *Sweeper {
	def := DefaultSweeperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	return &Sweeper{svc: svc, cfg: cfg}
}

// RunOnce expires everything currently due and returns how many reservations it moved.
func (sw *Sweeper) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	total, err := sw.sweep(ctx)

	sw.mu.Lock()
	sw.stats.Runs++
	sw.stats.Expired += int64(total)
	sw.stats.LastRun = start
	sw.stats.LastError = ""
	if err != nil {
		sw.stats.LastError = err.Error()
	}
	sw.mu.Unlock()

	sw.svc.log.Info("expiry sweep completed",
		zap.Int("expired", total),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return total, err
}

func (sw *Sweeper) sweep(ctx context.Context) (int, error) {
	s := sw.svc
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		now := s.now()
		due, err := s.reservations.ListExpirable(ctx, now, sw.cfg.BatchSize)
		if err != nil {
			return total, err
		}

		moved := 0
		for i := range due {
			r := due[i]
			if !domain.Expirable(&r) {
				continue
			}
			to, err := domain.Transition(r.Status, domain.EventExpire)
			if err != nil {
				continue
			}
			err = s.reservations.CompareAndSetStatus(ctx, r.TenantID, r.ID, r.Status, to)
			switch {
			case err == nil:
				moved++
				previous := r.Status
				r.Status = to
				r.UpdatedAt = now.UTC()
				s.metrics.expired.Inc(ctx)
				s.publish(ctx, events.TopicStatusChanged, &r, previous)
			case errors.Is(err, ErrStaleState), errors.Is(err, ErrNotFound):
				// moved by someone else since the listing
			default:
				return total, err
			}
		}
		total += moved

		if len(due) < sw.cfg.BatchSize || moved == 0 {
			return total, nil
		}
	}
}

// Stats returns a snapshot of the sweeper counters.
func (sw *Sweeper) Stats() SweepStats {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.stats
}

// Schedule runs a pass immediately and then every Interval until ctx is done
// or the returned channel is closed.
func (sw *Sweeper) Schedule(ctx context.Context) chan struct{} {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(sw.cfg.Interval)
		defer ticker.Stop()

		if _, err := sw.RunOnce(ctx); err != nil {
			sw.svc.log.Warn("expiry sweep failed", zap.Error(err))
		}
		for {
			select {
			case <-ticker.C:
				if _, err := sw.RunOnce(ctx); err != nil {
					sw.svc.log.Warn("expiry sweep failed", zap.Error(err))
				}
			case <-stopCh:
				sw.svc.log.Info("expiry sweeper stopped")
				return
			case <-ctx.Done():
				sw.svc.log.Info("expiry sweeper stopped (context done)")
				return
			}
		}
	}()

	sw.svc.log.Info("expiry sweeper started", zap.Duration("interval", sw.cfg.Interval))
	return stopCh
}
