package evaluator

import (
	"context"
	"sync"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/connectors"
	"triggerengine/src/executors"
	"triggerengine/src/model"
	"triggerengine/src/repository"
)

// Evaluator drains the feed event channel and reacts to each price update:
// risk-closes and marks-to-market the open positions on the symbol, then fires
// every satisfied trigger through the executor.
type Evaluator struct {
	positions *repository.PositionRepository
	triggers  *repository.TriggerRepository
	executor  *executors.Executor
}

// NewEvaluator creates an evaluator bound to the main read/write database.
func NewEvaluator() *Evaluator {
	logger.WithField("component", "Evaluator").
		Info("Creating new Evaluator with MainDB")

	return &Evaluator{
		positions: repository.NewPositionRepository(),
		triggers:  repository.NewTriggerRepository(),
		executor:  executors.NewExecutor(),
	}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for tests.
func (e *Evaluator) WithDB(db *gorm.DB) *Evaluator {
	return &Evaluator{
		positions: repository.NewPositionRepositoryWithDB(db),
		triggers:  repository.NewTriggerRepositoryWithDB(db),
		executor:  executors.NewExecutor().WithDB(db),
	}
}

// Run drains events with a pool of workers until ctx is cancelled or the
// channel closes. Updates for different symbols may interleave; per-account
// safety lives in the executor's transactions, not here.
func (e *Evaluator) Run(ctx context.Context, events <-chan connectors.PriceUpdate, workers int) {
	if workers < 1 {
		workers = 1
	}

	logger.WithField("workers", workers).Info("evaluator started")

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case update, ok := <-events:
					if !ok {
						return
					}
					e.HandlePrice(ctx, update)
				}
			}
		}()
	}
	wg.Wait()

	logger.Info("evaluator stopped")
}

// HandlePrice processes one price event end to end. Store errors abort the
// current step and are logged; the next event for the symbol retries the same
// state, so nothing is lost by skipping.
func (e *Evaluator) HandlePrice(ctx context.Context, update connectors.PriceUpdate) {
	marketType := string(update.Market)

	e.reviewPositions(ctx, update, marketType)
	e.fireTriggers(ctx, update, marketType)
}

// reviewPositions risk-checks every open position on the symbol. Hits are
// flipped to closing in one batched write; survivors get a mark-to-market
// refresh.
func (e *Evaluator) reviewPositions(ctx context.Context, update connectors.PriceUpdate, marketType string) {
	open, err := e.positions.FindOpenBySymbol(ctx, update.Symbol, marketType)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"market": update.Market,
			"symbol": update.Symbol,
		}).WithError(err).Error("failed to load open positions")
		return
	}
	if len(open) == 0 {
		return
	}

	var closeIDs []string
	var survivors []model.Position
	for _, p := range open {
		if reason, hit := RiskDecision(&p, update.Price); hit {
			logger.WithFields(map[string]interface{}{
				"position_id": p.ID,
				"user_id":     p.UserID,
				"symbol":      p.Symbol,
				"side":        p.Side,
				"price":       update.Price,
				"reason":      reason,
			}).Info("risk threshold hit, signalling close")
			closeIDs = append(closeIDs, p.ID)
			continue
		}
		survivors = append(survivors, p)
	}

	if len(closeIDs) > 0 {
		flipped, err := e.positions.MarkClosing(ctx, closeIDs)
		if err != nil {
			logger.WithField("symbol", update.Symbol).WithError(err).
				Error("failed to mark positions closing")
		} else if flipped < int64(len(closeIDs)) {
			// The guard skipped rows another writer already flipped. Fine.
			logger.WithFields(map[string]interface{}{
				"symbol":  update.Symbol,
				"wanted":  len(closeIDs),
				"flipped": flipped,
			}).Debug("some positions were already closing")
		}
	}

	for _, p := range survivors {
		if err := e.positions.MarkToMarket(ctx, p.ID, update.Price, p.MarkPnl(update.Price)); err != nil {
			logger.WithField("position_id", p.ID).WithError(err).
				Warn("mark-to-market update failed")
		}
	}
}

// fireTriggers executes every satisfied trigger on the symbol. Each execution
// is independently atomic; one failed trigger never blocks the others.
func (e *Evaluator) fireTriggers(ctx context.Context, update connectors.PriceUpdate, marketType string) {
	pending, err := e.triggers.FindBySymbol(ctx, update.Symbol, marketType)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"market": update.Market,
			"symbol": update.Symbol,
		}).WithError(err).Error("failed to load pending triggers")
		return
	}

	for _, trig := range pending {
		if !trig.Satisfied(update.Price) {
			continue
		}
		if err := e.executor.Execute(ctx, trig, update.Price); err != nil {
			// Already classified, discarded and persisted by the executor.
			logger.WithField("trigger_id", trig.ID).WithError(err).
				Debug("trigger execution reported failure")
		}
	}
}
