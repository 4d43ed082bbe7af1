package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// TradeRepository appends trade-history rows. History is append-only from the
// engine's side; closing an entry is the settlement handler's job.
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new repository instance using the main
// read/write database.
func NewTradeRepository() *TradeRepository {
	logger.WithField("component", "TradeRepository").
		Info("Creating new TradeRepository with MainDB")

	return &TradeRepository{
		db: database.MainDB,
	}
}

// NewTradeRepositoryWithDB creates a repository bound to the given handle,
// typically a running transaction.
func NewTradeRepositoryWithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts a new trade-history row.
func (r *TradeRepository) Create(ctx context.Context, t *model.PaperTrade) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TradeRepository",
			"op":     "Create",
			"symbol": t.Symbol,
			"side":   t.Side,
		}).WithError(err).Error("Failed to create paper trade")

		return err
	}

	return nil
}
