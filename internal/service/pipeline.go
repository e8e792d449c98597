// Package service contains the ingestion pipeline and the reconciliation
// loop that keep the notification store current.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/seenotify/agent/internal/classifier"
	"github.com/seenotify/agent/internal/domain"
	"github.com/seenotify/agent/internal/normalize"
	"github.com/seenotify/agent/internal/observability"
	"github.com/seenotify/agent/internal/queue"
	"github.com/seenotify/agent/internal/ratelimit"
	"github.com/seenotify/agent/internal/store"
	"go.uber.org/zap"
)

const (
	defaultClassifyTimeout = 10 * time.Second

	// classifyScope is the rate limiter scope for classifier calls.
	classifyScope = "classify"
)

// Classifier produces a spam verdict for one record.
type Classifier interface {
	Classify(ctx context.Context, record domain.NotificationRecord) (*classifier.Verdict, error)
}

// Forwarder ships one accepted record to the external backend.
type Forwarder interface {
	Forward(ctx context.Context, record domain.NotificationRecord)
}

// Pipeline turns raw notification events into stored records. Classification
// is best-effort: a slow or failing classifier never blocks or fails
// ingestion beyond the configured timeout.
type Pipeline struct {
	store           *store.Store
	classifier      Classifier
	forwarder       Forwarder
	rateLimiter     ratelimit.RateLimiter
	classifyTimeout time.Duration
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

func NewPipeline(
	recordStore *store.Store,
	spamClassifier Classifier,
	forwarder Forwarder,
	rateLimiter ratelimit.RateLimiter,
	classifyTimeout time.Duration,
	logger *zap.Logger,
) (*Pipeline, error) {
	if recordStore == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if classifyTimeout <= 0 {
		classifyTimeout = defaultClassifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		store:           recordStore,
		classifier:      spamClassifier,
		forwarder:       forwarder,
		rateLimiter:     rateLimiter,
		classifyTimeout: classifyTimeout,
		logger:          logger,
		now:             time.Now,
	}, nil
}

func (p *Pipeline) SetMetrics(metrics *observability.Metrics) {
	if p != nil {
		p.metrics = metrics
	}
}

// HandleEvent processes one consumed event message. It always returns nil
// for events the pipeline chose to drop, so the broker never redelivers
// payloads that can never succeed.
func (p *Pipeline) HandleEvent(ctx context.Context, msg queue.EventMessage) error {
	logger := observability.WithContextLogger(p.logger, ctx)

	switch msg.Kind {
	case queue.EventPosted:
		return p.handlePosted(ctx, *msg.Event, logger)
	case queue.EventRemoved:
		removed := p.store.Remove(ctx, msg.Event.PackageName, msg.Event.NativeID)
		logger.Debug("removal processed",
			zap.String("package", msg.Event.PackageName),
			zap.String("nativeId", msg.Event.NativeID),
			zap.Int("removed", removed),
		)
		return nil
	case queue.EventActiveSnapshot:
		return p.handleSnapshot(ctx, msg.Events, logger)
	default:
		logger.Warn("dropping event of unknown type", zap.String("eventType", msg.Kind.String()))
		return nil
	}
}

func (p *Pipeline) handlePosted(ctx context.Context, event domain.RawEvent, logger *zap.Logger) error {
	record, err := normalize.Record(event)
	if err != nil {
		p.metrics.IncEventMalformed(queue.EventPosted.String())
		logger.Warn("dropping unnormalizable event",
			zap.String("package", event.PackageName),
			zap.Error(err),
		)
		return nil
	}
	if record == nil {
		logger.Debug("dropping contentless event", zap.String("package", event.PackageName))
		return nil
	}

	if !p.store.Add(ctx, *record) {
		logger.Debug("duplicate suppressed", zap.String("notificationId", record.ID))
		return nil
	}

	if p.forwarder != nil {
		p.forwarder.Forward(ctx, *record)
	}

	p.classify(ctx, *record, logger)
	return nil
}

func (p *Pipeline) handleSnapshot(ctx context.Context, events []domain.RawEvent, logger *zap.Logger) error {
	records := make([]domain.NotificationRecord, 0, len(events))
	for _, event := range events {
		record, err := normalize.Record(event)
		if err != nil {
			p.metrics.IncEventMalformed(queue.EventActiveSnapshot.String())
			logger.Warn("skipping unnormalizable snapshot entry",
				zap.String("package", event.PackageName),
				zap.Error(err),
			)
			continue
		}
		if record == nil {
			continue
		}
		records = append(records, *record)
	}

	added := p.store.ReplaceActiveSnapshot(ctx, records)
	logger.Info("snapshot reconciled",
		zap.Int("snapshotSize", len(records)),
		zap.Int("added", added),
	)
	return nil
}

// classify asks the classifier for a verdict and attaches it to the stored
// record. The record stays in the store unclassified when anything here
// fails.
func (p *Pipeline) classify(ctx context.Context, record domain.NotificationRecord, logger *zap.Logger) {
	if p.classifier == nil {
		return
	}

	if p.rateLimiter != nil {
		if err := p.rateLimiter.Wait(ctx, classifyScope); err != nil {
			p.metrics.IncClassifyFailure("rate_limit")
			logger.Warn("classification skipped: rate limiter wait failed",
				zap.String("notificationId", record.ID),
				zap.Error(err),
			)
			return
		}
	}

	classifyCtx, cancel := context.WithTimeout(ctx, p.classifyTimeout)
	defer cancel()

	start := p.now()
	verdict, err := p.classifier.Classify(classifyCtx, record)
	p.metrics.ObserveClassifyDuration(p.now().Sub(start))

	if err != nil {
		reason := "permanent"
		if classifier.IsTransient(err) {
			reason = "transient"
		}
		p.metrics.IncClassifyFailure(reason)
		logger.Warn("classification failed",
			zap.String("notificationId", record.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return
	}

	p.metrics.IncClassified(verdict.IsSpam)

	// The record may have been removed while the classifier was running;
	// a stale verdict is simply discarded.
	if !p.store.SetClassification(ctx, record.ID, verdict.IsSpam, verdict.Confidence, false) {
		logger.Debug("discarding verdict for removed record", zap.String("notificationId", record.ID))
	}
}
