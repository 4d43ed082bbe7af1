package executors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
	"triggerengine/src/repository"
)

const serviceName = "trigger_engine"

var (
	// errTriggerConsumed means another execution removed the trigger first.
	// Harmless: at-most-once won.
	errTriggerConsumed = errors.New("trigger already consumed")
	// errInsufficientBalance is the business no-op: the account cannot fund
	// the trade, nothing is written and the trigger stays.
	errInsufficientBalance = errors.New("insufficient balance")
	// errAccountMissing is structural: the user context document is gone.
	errAccountMissing = errors.New("account document missing")
)

// Executor performs exactly one atomic account mutation per fired trigger.
// Every balance-affecting write set (debit + position + history + trigger
// delete) runs in a single store transaction; a failed transaction leaves the
// account untouched.
type Executor struct {
	db         *gorm.DB
	exceptions *repository.ExceptionRepository
	spotLocks  *keyedMutex
}

// NewExecutor creates an executor bound to the main read/write database.
func NewExecutor() *Executor {
	logger.WithField("component", "Executor").
		Info("Creating new Executor with MainDB")

	return &Executor{
		db:         database.MainDB,
		exceptions: repository.NewExceptionRepository(),
		spotLocks:  newKeyedMutex(),
	}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for tests.
func (x *Executor) WithDB(db *gorm.DB) *Executor {
	return &Executor{
		db:         db,
		exceptions: repository.NewExceptionRepositoryWithDB(db),
		spotLocks:  newKeyedMutex(),
	}
}

// Execute dispatches a satisfied trigger to the spot or futures path. The
// execution runs detached from the caller's cancellation: a transaction that
// has started is allowed to complete even during shutdown.
func (x *Executor) Execute(ctx context.Context, trig model.TradeTrigger, price float64) error {
	ctx = context.WithoutCancel(ctx)

	switch trig.Action {
	case model.TriggerActionBuy:
		return x.ExecuteSpotBuy(ctx, trig, price)
	case model.TriggerActionLong, model.TriggerActionShort:
		return x.ExecuteFuturesTrade(ctx, trig, price)
	default:
		return x.discard(ctx, trig, "Execute",
			fmt.Errorf("unknown trigger action %q", trig.Action))
	}
}

// ExecuteSpotBuy fires a spot buy trigger: debit the balance, average into an
// existing open position for the symbol or open a new one, append history,
// consume the trigger. All inside one transaction.
func (x *Executor) ExecuteSpotBuy(ctx context.Context, trig model.TradeTrigger, price float64) error {
	ctx = context.WithoutCancel(ctx)

	if price <= 0 || trig.Amount <= 0 {
		return x.discard(ctx, trig, "ExecuteSpotBuy",
			fmt.Errorf("invalid spot buy parameters: price=%f amount=%f", price, trig.Amount))
	}

	unlock := x.spotLocks.Lock(spotLockKey(trig.UserID, trig.Symbol))
	defer unlock()

	now := time.Now().UTC()
	size := trig.Amount / price

	err := x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		triggers := repository.NewTriggerRepositoryWithDB(tx)
		accounts := repository.NewAccountRepositoryWithDB(tx)
		positions := repository.NewPositionRepositoryWithDB(tx)
		trades := repository.NewTradeRepositoryWithDB(tx)

		// Consuming the trigger first is what makes duplicate price events
		// safe: the second transaction deletes zero rows and aborts here.
		consumed, err := triggers.Consume(ctx, trig.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return errTriggerConsumed
		}

		if err := debitOrClassify(ctx, accounts, trig.UserID, trig.Amount); err != nil {
			return err
		}

		existing, err := positions.FindOpenSpot(ctx, trig.UserID, trig.Symbol)
		if err != nil {
			return err
		}

		positionID := ""
		if existing != nil {
			newSize := existing.Size + size
			newAvg := (existing.Size*existing.AverageEntryPrice + size*price) / newSize
			res := tx.Model(&model.Position{}).
				Where("id = ? AND status = ?", existing.ID, model.PositionStatusOpen).
				Updates(map[string]interface{}{
					"size":                newSize,
					"average_entry_price": newAvg,
					"current_price":       price,
					"unrealized_pnl":      (price - newAvg) * newSize,
					"updated_at":          now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				positionID = existing.ID
			} else {
				// The position left the open state between the read and the
				// guarded update (a close was signalled mid-execution). Fall
				// through and open a fresh position so the purchased size is
				// never silently dropped.
				logger.WithFields(map[string]interface{}{
					"position_id": existing.ID,
					"user_id":     trig.UserID,
					"symbol":      trig.Symbol,
				}).Warn("position closed mid-execution, opening fresh position")
			}
		}
		if positionID == "" {
			pos := &model.Position{
				ID:                uuid.NewString(),
				UserID:            trig.UserID,
				PositionType:      model.PositionTypeSpot,
				Symbol:            trig.Symbol,
				SymbolName:        trig.SymbolName,
				Size:              size,
				AverageEntryPrice: price,
				CurrentPrice:      price,
				Side:              model.SideBuy,
				Leverage:          1,
				StopLoss:          trig.StopLoss,
				TakeProfit:        trig.TakeProfit,
				Status:            model.PositionStatusOpen,
				OpenedAt:          now,
			}
			if err := positions.Create(ctx, pos); err != nil {
				return err
			}
			positionID = pos.ID
		}

		return trades.Create(ctx, &model.PaperTrade{
			ID:           uuid.NewString(),
			PositionID:   positionID,
			UserID:       trig.UserID,
			PositionType: model.PositionTypeSpot,
			Symbol:       trig.Symbol,
			Size:         size,
			Price:        price,
			Side:         model.SideBuy,
			Leverage:     1,
			Status:       model.TradeStatusOpen,
			ExecutedAt:   now,
		})
	})

	return x.finish(ctx, trig, "ExecuteSpotBuy", price, err)
}

// ExecuteFuturesTrade fires a long or short futures trigger. The amount is
// collateral: position value is amount x leverage and every fire opens a
// distinct position, there is no averaging for futures.
func (x *Executor) ExecuteFuturesTrade(ctx context.Context, trig model.TradeTrigger, price float64) error {
	ctx = context.WithoutCancel(ctx)

	if price <= 0 || trig.Amount <= 0 || trig.Leverage < 1 {
		return x.discard(ctx, trig, "ExecuteFuturesTrade",
			fmt.Errorf("invalid futures parameters: price=%f amount=%f leverage=%f",
				price, trig.Amount, trig.Leverage))
	}

	now := time.Now().UTC()
	positionValue := trig.Amount * trig.Leverage
	size := positionValue / price
	liquidation := LiquidationPrice(price, trig.Leverage, trig.Action)

	err := x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		triggers := repository.NewTriggerRepositoryWithDB(tx)
		accounts := repository.NewAccountRepositoryWithDB(tx)
		positions := repository.NewPositionRepositoryWithDB(tx)
		trades := repository.NewTradeRepositoryWithDB(tx)

		consumed, err := triggers.Consume(ctx, trig.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return errTriggerConsumed
		}

		if err := debitOrClassify(ctx, accounts, trig.UserID, trig.Amount); err != nil {
			return err
		}

		pos := &model.Position{
			ID:                uuid.NewString(),
			UserID:            trig.UserID,
			PositionType:      model.PositionTypeFutures,
			Symbol:            trig.Symbol,
			SymbolName:        trig.SymbolName,
			Size:              size,
			AverageEntryPrice: price,
			CurrentPrice:      price,
			Side:              trig.Action,
			Leverage:          trig.Leverage,
			LiquidationPrice:  &liquidation,
			StopLoss:          trig.StopLoss,
			TakeProfit:        trig.TakeProfit,
			Status:            model.PositionStatusOpen,
			OpenedAt:          now,
		}
		if err := positions.Create(ctx, pos); err != nil {
			return err
		}

		return trades.Create(ctx, &model.PaperTrade{
			ID:           uuid.NewString(),
			PositionID:   pos.ID,
			UserID:       trig.UserID,
			PositionType: model.PositionTypeFutures,
			Symbol:       trig.Symbol,
			Size:         size,
			Price:        price,
			Side:         trig.Action,
			Leverage:     trig.Leverage,
			Status:       model.TradeStatusOpen,
			ExecutedAt:   now,
		})
	})

	return x.finish(ctx, trig, "ExecuteFuturesTrade", price, err)
}

// LiquidationPrice computes the simplified liquidation level: the price move
// that wipes the collateral. Long: price x (1 - 1/L). Short: price x (1 + 1/L).
func LiquidationPrice(price, leverage float64, action string) float64 {
	if action == model.TriggerActionShort {
		return price * (1 + 1/leverage)
	}
	return price * (1 - 1/leverage)
}

// debitOrClassify debits the balance and maps a refused debit to either the
// business no-op (funds too low) or the structural missing-account error.
func debitOrClassify(
	ctx context.Context,
	accounts *repository.AccountRepository,
	userID uint,
	amount float64,
) error {

	ok, err := accounts.DebitBalance(ctx, userID, amount)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	account, err := accounts.GetByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if account == nil {
		return errAccountMissing
	}
	return errInsufficientBalance
}

// finish classifies the transaction outcome and applies the post-steps:
// cancel-others cleanup on success, fail-closed discard on structural failure.
func (x *Executor) finish(
	ctx context.Context,
	trig model.TradeTrigger,
	method string,
	price float64,
	err error,
) error {

	log := logger.WithFields(map[string]interface{}{
		"trigger_id": trig.ID,
		"user_id":    trig.UserID,
		"symbol":     trig.Symbol,
		"action":     trig.Action,
		"price":      price,
	})

	switch {
	case err == nil:
		log.Info("trigger executed")

		if trig.CancelOthers {
			// Convenience cleanup only, deliberately outside the committed
			// transaction.
			triggers := repository.NewTriggerRepositoryWithDB(x.db)
			removed, derr := triggers.DeleteOthersForSymbol(ctx, trig.UserID, trig.Symbol, trig.ID)
			if derr != nil {
				log.WithError(derr).Warn("cancel-others cleanup failed")
			} else if removed > 0 {
				log.WithField("removed", removed).Info("cancelled remaining triggers for symbol")
			}
		}
		return nil

	case errors.Is(err, errTriggerConsumed):
		log.Debug("trigger already consumed by a concurrent execution")
		return nil

	case errors.Is(err, errInsufficientBalance):
		// Business no-op: the transaction rolled back, account state and the
		// trigger itself are untouched.
		log.Warn("trigger skipped, insufficient balance")
		return nil

	default:
		return x.discard(ctx, trig, method, err)
	}
}

// discard implements the fail-closed policy: a trigger whose execution failed
// structurally is deleted outside the transaction so it cannot retry forever,
// and the failure is persisted for the dashboard to surface.
func (x *Executor) discard(ctx context.Context, trig model.TradeTrigger, method string, cause error) error {
	logger.WithFields(map[string]interface{}{
		"trigger_id": trig.ID,
		"user_id":    trig.UserID,
		"symbol":     trig.Symbol,
	}).WithError(cause).Error("trigger execution failed, discarding trigger")

	triggers := repository.NewTriggerRepositoryWithDB(x.db)
	if derr := triggers.Delete(ctx, trig.ID); derr != nil {
		logger.WithField("trigger_id", trig.ID).WithError(derr).
			Error("failed to discard broken trigger")
	}

	excContext, _ := json.Marshal(map[string]interface{}{
		"trigger_id": trig.ID,
		"user_id":    trig.UserID,
		"symbol":     trig.Symbol,
		"action":     trig.Action,
	})
	if cerr := x.exceptions.Create(ctx, &model.Exception{
		Service: serviceName,
		Module:  "executors",
		Method:  method,
		Message: cause.Error(),
		Level:   "error",
		Context: string(excContext),
	}); cerr != nil {
		logger.WithError(cerr).Error("failed to persist execution exception")
	}

	return cause
}

func spotLockKey(userID uint, symbol string) string {
	return fmt.Sprintf("%d:%s", userID, symbol)
}
