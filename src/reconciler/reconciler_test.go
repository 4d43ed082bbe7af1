package reconciler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"triggerengine/src/model"
	"triggerengine/src/reconciler"
)

type captureSink struct {
	mu      sync.Mutex
	last    []string
	updates int
}

func (s *captureSink) UpdateSubscriptions(symbols []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = symbols
	s.updates++
}

func (s *captureSink) snapshot() ([]string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.updates
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&model.TradeTrigger{}, &model.Position{}))

	return db
}

func trigger(symbol, triggerType string) model.TradeTrigger {
	return model.TradeTrigger{
		ID:          uuid.NewString(),
		UserID:      1,
		TriggerType: triggerType,
		Symbol:      symbol,
		Condition:   model.TriggerConditionAbove,
		TargetPrice: 1,
		Action:      model.TriggerActionBuy,
		Amount:      1,
		Leverage:    1,
	}
}

func position(symbol, positionType, status string) model.Position {
	return model.Position{
		ID:                uuid.NewString(),
		UserID:            1,
		PositionType:      positionType,
		Symbol:            symbol,
		Size:              1,
		AverageEntryPrice: 1,
		Side:              model.SideBuy,
		Leverage:          1,
		Status:            status,
	}
}

func TestReconcileOnceUnionsTriggersAndPositions(t *testing.T) {
	db := newTestDB(t)

	triggers := []model.TradeTrigger{
		trigger("BTC-USDT", "spot"),
		trigger("ETH-USDT", "spot"),
		trigger("XBTUSDTM", "futures"),
	}
	positions := []model.Position{
		position("BTC-USDT", model.PositionTypeSpot, model.PositionStatusOpen),
		position("SOL-USDT", model.PositionTypeSpot, model.PositionStatusOpen),
		position("ETHUSDTM", model.PositionTypeFutures, model.PositionStatusClosing),
	}
	require.NoError(t, db.Create(&triggers).Error)
	require.NoError(t, db.Create(&positions).Error)

	spot := &captureSink{}
	futures := &captureSink{}
	rec := reconciler.NewReconciler(reconciler.Config{}, spot, futures).WithDB(db)

	rec.ReconcileOnce(context.Background())

	spotSymbols, _ := spot.snapshot()
	require.Equal(t, []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}, spotSymbols)

	// Closing positions still need their feed until settlement removes them.
	futuresSymbols, _ := futures.snapshot()
	require.Equal(t, []string{"ETHUSDTM", "XBTUSDTM"}, futuresSymbols)
}

func TestReconcileOncePushesEmptySetWhenStoreIsEmpty(t *testing.T) {
	db := newTestDB(t)

	spot := &captureSink{}
	futures := &captureSink{}
	rec := reconciler.NewReconciler(reconciler.Config{}, spot, futures).WithDB(db)

	rec.ReconcileOnce(context.Background())

	spotSymbols, spotUpdates := spot.snapshot()
	require.Empty(t, spotSymbols)
	require.Equal(t, 1, spotUpdates, "an empty store still produces an (empty) update")

	_, futuresUpdates := futures.snapshot()
	require.Equal(t, 1, futuresUpdates)
}

func TestReconcileOnceDeduplicatesSymbols(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Create(&[]model.TradeTrigger{
		trigger("BTC-USDT", "spot"),
		trigger("BTC-USDT", "spot"),
	}).Error)
	pos := position("BTC-USDT", model.PositionTypeSpot, model.PositionStatusOpen)
	require.NoError(t, db.Create(&pos).Error)

	spot := &captureSink{}
	futures := &captureSink{}
	rec := reconciler.NewReconciler(reconciler.Config{}, spot, futures).WithDB(db)

	rec.ReconcileOnce(context.Background())

	spotSymbols, _ := spot.snapshot()
	require.Equal(t, []string{"BTC-USDT"}, spotSymbols)
}
