package model

import "time"

const (
	PositionTypeSpot    = "spot"
	PositionTypeFutures = "futures"

	SideBuy   = "buy"
	SideLong  = "long"
	SideShort = "short"
)

const (
	// PositionStatusOpen means the position is live and reacts to price events.
	PositionStatusOpen = "open"
	// PositionStatusClosing means a close has been signalled. The external
	// settlement handler credits the balance, closes the trade row and deletes
	// the position. Until then the row must not be touched again.
	PositionStatusClosing = "closing"
)

// Position is a live simulated holding, spot or leveraged futures.
type Position struct {
	ID                string  `gorm:"primaryKey;size:36" json:"id"`
	UserID            uint    `gorm:"index;not null" json:"user_id"`
	PositionType      string  `gorm:"size:20;not null;index" json:"position_type"` // spot | futures
	Symbol            string  `gorm:"size:50;not null;index" json:"symbol"`
	SymbolName        string  `gorm:"size:100" json:"symbol_name"`
	Size              float64 `gorm:"not null" json:"size"`
	AverageEntryPrice float64 `gorm:"column:average_entry_price;not null" json:"average_entry_price"`
	CurrentPrice      float64 `gorm:"column:current_price" json:"current_price"`
	Side              string  `gorm:"size:20;not null" json:"side"` // buy | long | short
	Leverage          float64 `gorm:"not null;default:1" json:"leverage"`
	UnrealizedPnl     float64 `gorm:"column:unrealized_pnl" json:"unrealized_pnl"`
	// LiquidationPrice is only set for futures positions.
	LiquidationPrice *float64  `json:"liquidation_price,omitempty"`
	StopLoss         *float64  `json:"stop_loss,omitempty"`
	TakeProfit       *float64  `json:"take_profit,omitempty"`
	Status           string    `gorm:"size:50;not null;default:open;index" json:"status"`
	OpenedAt         time.Time `json:"opened_at"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsLong reports whether the position profits when the price rises.
// "buy" is the spot side, "long" the futures side.
func (p *Position) IsLong() bool {
	return p.Side == SideBuy || p.Side == SideLong
}

// MarkPnl returns the unrealized P&L at the given price.
func (p *Position) MarkPnl(price float64) float64 {
	if p.IsLong() {
		return (price - p.AverageEntryPrice) * p.Size
	}
	return (p.AverageEntryPrice - price) * p.Size
}
