package model

import "time"

// Account holds the simulated cash balance for one user. It is only ever
// mutated inside a transaction that also touches a position, trade or trigger.
type Account struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Balance     float64   `gorm:"not null;default:0" json:"balance"`
	RealizedPnl float64   `gorm:"column:realized_pnl;not null;default:0" json:"realized_pnl"`
	WinRate     float64   `gorm:"column:win_rate;not null;default:0" json:"win_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
