package service

import (
	"context"
	"fmt"
	"time"

	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/observability"
	"github.com/seenotify/agent/internal/store"
	"go.uber.org/zap"
)

const defaultReconcileInterval = 5 * time.Minute

// SpamSource returns the set of previously classified records known to the
// classification service.
type SpamSource interface {
	FetchKnownSpam(ctx context.Context) ([]domain.NotificationRecord, error)
}

// Reconciler periodically merges remotely known classifications into the
// local store. Local state always wins: a record the user already holds is
// only backfilled when it has no verdict of its own.
type Reconciler struct {
	store    *store.Store
	source   SpamSource
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewReconciler(
	recordStore *store.Store,
	source SpamSource,
	interval time.Duration,
	logger *zap.Logger,
) (*Reconciler, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("spam source is required")
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		store:    recordStore,
		source:   source,
		interval: interval,
		logger:   logger,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r != nil {
		r.metrics = metrics
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := r.reconcileOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("initial reconcile failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.reconcileOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("reconcile failed", zap.Error(err))
			}
		}
	}
}

func (r *Reconciler) reconcileOnce(ctx context.Context) error {
	known, err := r.source.FetchKnownSpam(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch known classifications: %w", err)
	}

	var added, backfilled int
	for i := range known {
		record := known[i]
		if !record.Classified() {
			continue
		}

		if r.store.SetClassification(ctx, record.ID, *record.IsSpam, *record.Confidence, true) {
			backfilled++
			r.metrics.IncReconcileMerged("backfilled")
			continue
		}

		if _, err := r.store.Get(record.ID); err == nil {
			// Present but already classified locally; local verdict wins.
			continue
		}

		if r.store.Add(ctx, record) {
			added++
			r.metrics.IncReconcileMerged("added")
		}
	}

	r.logger.Info("reconcile completed",
		zap.Int("known", len(known)),
		zap.Int("added", added),
		zap.Int("backfilled", backfilled),
	)
	return nil
}
