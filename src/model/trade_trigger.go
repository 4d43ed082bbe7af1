package model

import "time"

const (
	TriggerConditionAbove = "above"
	TriggerConditionBelow = "below"

	TriggerActionBuy   = "buy"
	TriggerActionLong  = "long"
	TriggerActionShort = "short"
)

// TradeTrigger is a conditional order. It is read-only until a price event
// satisfies its condition and is consumed (deleted) at most once.
type TradeTrigger struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	UserID      uint   `gorm:"index;not null" json:"user_id"`
	TriggerType string `gorm:"size:20;not null;index" json:"trigger_type"` // spot | futures
	Symbol      string `gorm:"size:50;not null;index" json:"symbol"`
	SymbolName  string `gorm:"size:100" json:"symbol_name"`
	Condition   string `gorm:"size:20;not null" json:"condition"` // above | below
	TargetPrice float64 `gorm:"not null" json:"target_price"`
	Action      string  `gorm:"size:20;not null" json:"action"` // buy | long | short
	// Amount is the cash allocation for spot buys and the collateral for
	// futures trades.
	Amount       float64  `gorm:"not null" json:"amount"`
	Leverage     float64  `gorm:"not null;default:1" json:"leverage"`
	StopLoss     *float64 `json:"stop_loss,omitempty"`
	TakeProfit   *float64 `json:"take_profit,omitempty"`
	CancelOthers bool     `gorm:"not null;default:false" json:"cancel_others"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (TradeTrigger) TableName() string {
	return "trade_triggers"
}

// Satisfied reports whether the given live price meets the trigger condition.
func (t *TradeTrigger) Satisfied(price float64) bool {
	switch t.Condition {
	case TriggerConditionAbove:
		return price >= t.TargetPrice
	case TriggerConditionBelow:
		return price <= t.TargetPrice
	default:
		return false
	}
}
