package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// PositionRepository handles read/write operations for open positions.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main
// read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// NewPositionRepositoryWithDB creates a repository bound to the given handle,
// typically a running transaction.
func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// FindOpenBySymbol returns every position on the symbol that is still in the
// open state. Positions already transitioning to closing are excluded so a
// close in progress is never re-signalled.
func (r *PositionRepository) FindOpenBySymbol(
	ctx context.Context,
	symbol string,
	positionType string,
) ([]model.Position, error) {

	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND position_type = ? AND status = ?",
			symbol, positionType, model.PositionStatusOpen).
		Find(&positions).Error
	if err != nil {
		return nil, err
	}

	return positions, nil
}

// FindOpenSpot fetches the user's open spot position for the symbol, used by
// the averaging-in path. Returns (nil, nil) when the user holds none.
func (r *PositionRepository) FindOpenSpot(
	ctx context.Context,
	userID uint,
	symbol string,
) (*model.Position, error) {

	var p model.Position
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND position_type = ? AND status = ?",
			userID, symbol, model.PositionTypeSpot, model.PositionStatusOpen).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &p, nil
}

// Create inserts a new position row.
func (r *PositionRepository) Create(ctx context.Context, p *model.Position) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// MarkClosing flips the given open positions to the closing state in one
// batched write. The settlement handler reacts to the transition; the engine
// itself never settles. Rows that left the open state since the read are
// skipped by the status guard.
func (r *PositionRepository) MarkClosing(
	ctx context.Context,
	ids []string,
) (int64, error) {

	if len(ids) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id IN ? AND status = ?", ids, model.PositionStatusOpen).
		Update("status", model.PositionStatusClosing)

	return res.RowsAffected, res.Error
}

// MarkToMarket refreshes current price and unrealized P&L on a still-open
// position. The status guard keeps closing positions untouched.
func (r *PositionRepository) MarkToMarket(
	ctx context.Context,
	id string,
	price float64,
	unrealizedPnl float64,
) error {

	return r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ? AND status = ?", id, model.PositionStatusOpen).
		Updates(map[string]interface{}{
			"current_price":  price,
			"unrealized_pnl": unrealizedPnl,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// DistinctOpenSymbols returns every symbol referenced by an open or closing
// position of the given type, across all users.
func (r *PositionRepository) DistinctOpenSymbols(
	ctx context.Context,
	positionType string,
) ([]string, error) {

	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Distinct("symbol").
		Where("position_type = ?", positionType).
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}

	return symbols, nil
}
