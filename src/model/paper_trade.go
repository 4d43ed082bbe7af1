package model

import "time"

const (
	TradeStatusOpen   = "open"
	TradeStatusClosed = "closed"
)

// PaperTrade is the trade-history row written for every execution. Rows are
// created at position open and flipped to closed (with the final pnl) by the
// settlement handler. They are never deleted.
type PaperTrade struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	PositionID   string    `gorm:"size:36;index" json:"position_id"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	PositionType string    `gorm:"size:20;not null" json:"position_type"` // spot | futures
	Symbol       string    `gorm:"size:50;not null;index" json:"symbol"`
	Size         float64   `gorm:"not null" json:"size"`
	Price        float64   `gorm:"not null" json:"price"`
	Side         string    `gorm:"size:20;not null" json:"side"`
	Leverage     float64   `gorm:"not null;default:1" json:"leverage"`
	Status       string    `gorm:"size:50;not null;default:open" json:"status"`
	Pnl          float64   `json:"pnl"`
	ExecutedAt   time.Time `json:"executed_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (PaperTrade) TableName() string {
	return "paper_trades"
}
