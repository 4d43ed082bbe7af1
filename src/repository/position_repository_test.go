package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"triggerengine/src/model"
)

func TestPositionRepositoryMarkClosing(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	t.Run("empty id list is a no-op", func(t *testing.T) {
		flipped, err := repo.MarkClosing(context.Background(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if flipped != 0 {
			t.Fatalf("expected 0 flipped rows, got %d", flipped)
		}
	})

	t.Run("guards on the open status", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "positions" SET "status"=$1,"updated_at"=$2 WHERE id IN ($3,$4) AND status = $5`)).
			WithArgs(model.PositionStatusClosing, sqlmock.AnyArg(), "p1", "p2", model.PositionStatusOpen).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		flipped, err := repo.MarkClosing(context.Background(), []string{"p1", "p2"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if flipped != 1 {
			t.Fatalf("expected 1 flipped row, got %d", flipped)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestPositionRepositoryMarkToMarket(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PositionRepository{db: mockDB}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "positions" SET "current_price"=$1,"unrealized_pnl"=$2,"updated_at"=$3 WHERE id = $4 AND status = $5`)).
		WithArgs(59000.0, -10.0, sqlmock.AnyArg(), "p1", model.PositionStatusOpen).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.MarkToMarket(context.Background(), "p1", 59000, -10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
