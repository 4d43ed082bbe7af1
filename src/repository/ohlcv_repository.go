package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// OHLCVRepository handles candle-history storage for the backfill command.
type OHLCVRepository struct {
	db *gorm.DB
}

// NewOHLCVRepository creates a new repository using the main database.
func NewOHLCVRepository() *OHLCVRepository {
	logger.WithField("component", "OHLCVRepository").
		Info("Creating new OHLCVRepository with MainDB")

	return &OHLCVRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *OHLCVRepository) WithDB(db *gorm.DB) *OHLCVRepository {
	return &OHLCVRepository{db: db}
}

func (r *OHLCVRepository) modelFor(duration string) (*gorm.DB, error) {
	switch duration {
	case "1m":
		return r.db.Model(&model.OHLCVCrypto1m{}), nil
	case "1h":
		return r.db.Model(&model.OHLCVCrypto1h{}), nil
	default:
		return nil, fmt.Errorf("invalid candle duration %q", duration)
	}
}

// LatestDatetime returns the most recent candle timestamp stored for the
// symbol, or a zero time when no rows exist yet.
func (r *OHLCVRepository) LatestDatetime(
	ctx context.Context,
	symbol string,
	duration string,
) (time.Time, error) {

	tx, err := r.modelFor(duration)
	if err != nil {
		return time.Time{}, err
	}

	var latest sql.NullTime
	err = tx.WithContext(ctx).
		Select("MAX(datetime)").
		Where("symbol = ?", symbol).
		Take(&latest).Error
	if err != nil {
		return time.Time{}, err
	}

	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

// Upsert writes a candle row, updating OHLCV values on (symbol, datetime)
// conflicts so re-running a backfill window is safe.
func (r *OHLCVRepository) Upsert(ctx context.Context, row interface{}) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "datetime"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).Create(row).Error
}
