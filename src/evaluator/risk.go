package evaluator

import "triggerengine/src/model"

// Close reasons attached to the decision so logs explain why a position was
// flipped to closing.
const (
	ReasonStopLoss    = "stop_loss"
	ReasonTakeProfit  = "take_profit"
	ReasonLiquidation = "liquidation"
)

// RiskDecision inspects an open position at the given live price and reports
// whether it must be closed, and why. Liquidation dominates stop loss, stop
// loss dominates take profit.
//
// Directionality: a long position stops out when the price falls to or below
// the stop and takes profit when it rises to or above the target. Shorts are
// the mirror image.
func RiskDecision(p *model.Position, price float64) (string, bool) {
	long := p.IsLong()

	if p.PositionType == model.PositionTypeFutures && p.LiquidationPrice != nil {
		liq := *p.LiquidationPrice
		if long && price <= liq {
			return ReasonLiquidation, true
		}
		if !long && price >= liq {
			return ReasonLiquidation, true
		}
	}

	if p.StopLoss != nil {
		sl := *p.StopLoss
		if long && price <= sl {
			return ReasonStopLoss, true
		}
		if !long && price >= sl {
			return ReasonStopLoss, true
		}
	}

	if p.TakeProfit != nil {
		tp := *p.TakeProfit
		if long && price >= tp {
			return ReasonTakeProfit, true
		}
		if !long && price <= tp {
			return ReasonTakeProfit, true
		}
	}

	return "", false
}
