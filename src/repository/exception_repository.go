package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"triggerengine/src/database"
	"triggerengine/src/model"
)

// ExceptionRepository persists engine failures so the dashboard can explain a
// discarded trigger to its owner.
type ExceptionRepository struct {
	db *gorm.DB
}

// NewExceptionRepository creates a new repository instance.
func NewExceptionRepository() *ExceptionRepository {
	return &ExceptionRepository{
		db: database.MainDB,
	}
}

// NewExceptionRepositoryWithDB creates a repository bound to the given handle.
func NewExceptionRepositoryWithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExceptionRepository) WithDB(db *gorm.DB) *ExceptionRepository {
	return &ExceptionRepository{db: db}
}

// Create persists a new exception in the database.
func (r *ExceptionRepository) Create(
	ctx context.Context,
	exc *model.Exception,
) error {

	logger.WithFields(map[string]interface{}{
		"service": exc.Service,
		"module":  exc.Module,
		"method":  exc.Method,
		"level":   exc.Level,
	}).Error("Persisting system exception")

	return r.db.WithContext(ctx).Create(exc).Error
}
