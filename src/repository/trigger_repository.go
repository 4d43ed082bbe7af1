package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// TriggerRepository handles read/delete operations for trade triggers. The
// engine never creates triggers; users and agent jobs do.
type TriggerRepository struct {
	db *gorm.DB
}

// NewTriggerRepository creates a new repository instance using the main
// read/write database.
func NewTriggerRepository() *TriggerRepository {
	logger.WithField("component", "TriggerRepository").
		Info("Creating new TriggerRepository with MainDB")

	return &TriggerRepository{
		db: database.MainDB,
	}
}

// NewTriggerRepositoryWithDB creates a repository bound to the given handle,
// typically a running transaction.
func NewTriggerRepositoryWithDB(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TriggerRepository) WithDB(db *gorm.DB) *TriggerRepository {
	return &TriggerRepository{db: db}
}

// FindBySymbol returns every trigger of the given type waiting on the symbol,
// across all users.
func (r *TriggerRepository) FindBySymbol(
	ctx context.Context,
	symbol string,
	triggerType string,
) ([]model.TradeTrigger, error) {

	var triggers []model.TradeTrigger
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND trigger_type = ?", symbol, triggerType).
		Find(&triggers).Error
	if err != nil {
		return nil, err
	}

	return triggers, nil
}

// Consume deletes the trigger and reports whether this call actually removed
// it. A false return means another execution got there first; the caller must
// treat the trigger as already fired.
func (r *TriggerRepository) Consume(
	ctx context.Context,
	id string,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.TradeTrigger{})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

// Delete removes a trigger unconditionally (fail-closed discard path).
func (r *TriggerRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&model.TradeTrigger{}).Error
}

// DeleteOthersForSymbol removes the user's remaining triggers on the symbol,
// keeping the one that just fired out of the delete. Used for the
// cancel-others convenience cleanup after a successful execution.
func (r *TriggerRepository) DeleteOthersForSymbol(
	ctx context.Context,
	userID uint,
	symbol string,
	excludeID string,
) (int64, error) {

	res := r.db.WithContext(ctx).
		Where("user_id = ? AND symbol = ? AND id <> ?", userID, symbol, excludeID).
		Delete(&model.TradeTrigger{})

	return res.RowsAffected, res.Error
}

// DistinctSymbols returns every symbol referenced by a pending trigger of the
// given type, across all users.
func (r *TriggerRepository) DistinctSymbols(
	ctx context.Context,
	triggerType string,
) ([]string, error) {

	var symbols []string
	err := r.db.WithContext(ctx).
		Model(&model.TradeTrigger{}).
		Distinct("symbol").
		Where("trigger_type = ?", triggerType).
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, err
	}

	return symbols, nil
}
