package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// AccountRepository handles reads and balance mutations for user accounts.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main
// read/write database.
func NewAccountRepository() *AccountRepository {
	logger.WithField("component", "AccountRepository").
		Info("Creating new AccountRepository with MainDB")

	return &AccountRepository{
		db: database.MainDB,
	}
}

// NewAccountRepositoryWithDB creates a repository bound to the given handle,
// typically a running transaction.
func NewAccountRepositoryWithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when running inside a transaction.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetByUserID fetches the account owned by the given user.
// Returns (nil, nil) if the account does not exist.
func (r *AccountRepository) GetByUserID(
	ctx context.Context,
	userID uint,
) (*model.Account, error) {

	var a model.Account
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &a, nil
}

// DebitBalance atomically decrements the balance by amount, guarded so the
// balance never goes negative. Returns false when the funds were insufficient
// (no row updated).
func (r *AccountRepository) DebitBalance(
	ctx context.Context,
	userID uint,
	amount float64,
) (bool, error) {

	res := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}
