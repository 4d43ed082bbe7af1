package reconciler

import (
	"context"
	"sort"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
	"triggerengine/src/repository"
)

// SubscriptionSink receives the authoritative symbol set for one market.
// FeedConnection satisfies it.
type SubscriptionSink interface {
	UpdateSubscriptions(symbols []string)
}

// Reconciler periodically derives the symbol set each feed must be subscribed
// to: every symbol with a pending trigger or an open position, per market. It
// only reads, so it runs against the read-only replica.
type Reconciler struct {
	triggers  *repository.TriggerRepository
	positions *repository.PositionRepository

	spot    SubscriptionSink
	futures SubscriptionSink

	interval     time.Duration
	initialDelay time.Duration
}

// NewReconciler creates a reconciler scanning the read-only database and
// feeding both market sinks.
func NewReconciler(cfg Config, spot, futures SubscriptionSink) *Reconciler {
	logger.WithField("component", "Reconciler").
		Info("Creating new Reconciler with ReadOnlyDB")

	return &Reconciler{
		triggers:     repository.NewTriggerRepositoryWithDB(database.ReadOnlyDB),
		positions:    repository.NewPositionRepositoryWithDB(database.ReadOnlyDB),
		spot:         spot,
		futures:      futures,
		interval:     cfg.Interval,
		initialDelay: cfg.InitialDelay,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for tests.
func (r *Reconciler) WithDB(db *gorm.DB) *Reconciler {
	return &Reconciler{
		triggers:     repository.NewTriggerRepositoryWithDB(db),
		positions:    repository.NewPositionRepositoryWithDB(db),
		spot:         r.spot,
		futures:      r.futures,
		interval:     r.interval,
		initialDelay: r.initialDelay,
	}
}

// Run reconciles once after a short startup delay (letting the feeds finish
// their first handshake), then on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(r.initialDelay):
	}
	r.ReconcileOnce(ctx)

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("reconciler stopped")
			return
		case <-t.C:
			r.ReconcileOnce(ctx)
		}
	}
}

// ReconcileOnce scans both markets and pushes the resulting sets to the
// sinks. A failed scan leaves that market's previous set in place; stale
// subscriptions only cost ignored events, missing ones cost fired triggers.
func (r *Reconciler) ReconcileOnce(ctx context.Context) {
	if symbols, err := r.scan(ctx, model.PositionTypeSpot); err != nil {
		logger.WithError(err).Error("spot reconcile scan failed, keeping previous set")
	} else {
		r.spot.UpdateSubscriptions(symbols)
	}

	if symbols, err := r.scan(ctx, model.PositionTypeFutures); err != nil {
		logger.WithError(err).Error("futures reconcile scan failed, keeping previous set")
	} else {
		r.futures.UpdateSubscriptions(symbols)
	}
}

// scan unions trigger symbols and open-position symbols for one market.
func (r *Reconciler) scan(ctx context.Context, marketType string) ([]string, error) {
	fromTriggers, err := r.triggers.DistinctSymbols(ctx, marketType)
	if err != nil {
		return nil, err
	}
	fromPositions, err := r.positions.DistinctOpenSymbols(ctx, marketType)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(fromTriggers)+len(fromPositions))
	for _, s := range fromTriggers {
		set[s] = struct{}{}
	}
	for _, s := range fromPositions {
		set[s] = struct{}{}
	}

	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	logger.WithFields(map[string]interface{}{
		"market":  marketType,
		"symbols": len(symbols),
	}).Debug("reconcile scan complete")

	return symbols, nil
}
