package evaluator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"triggerengine/src/model"
)

func f(v float64) *float64 { return &v }

func TestRiskDecision(t *testing.T) {
	tests := []struct {
		name       string
		position   model.Position
		price      float64
		wantReason string
		wantHit    bool
	}{
		{
			name: "long stop loss hit at exact level",
			position: model.Position{
				PositionType: model.PositionTypeSpot,
				Side:         model.SideBuy,
				StopLoss:     f(58000),
			},
			price:      58000,
			wantReason: ReasonStopLoss,
			wantHit:    true,
		},
		{
			name: "long stop loss not hit just above level",
			position: model.Position{
				PositionType: model.PositionTypeSpot,
				Side:         model.SideBuy,
				StopLoss:     f(58000),
			},
			price:   58000.01,
			wantHit: false,
		},
		{
			name: "long take profit hit",
			position: model.Position{
				PositionType: model.PositionTypeSpot,
				Side:         model.SideBuy,
				TakeProfit:   f(65000),
			},
			price:      65100,
			wantReason: ReasonTakeProfit,
			wantHit:    true,
		},
		{
			name: "short stop loss triggers on rise",
			position: model.Position{
				PositionType: model.PositionTypeFutures,
				Side:         model.SideShort,
				StopLoss:     f(62000),
			},
			price:      62500,
			wantReason: ReasonStopLoss,
			wantHit:    true,
		},
		{
			name: "short take profit triggers on fall",
			position: model.Position{
				PositionType: model.PositionTypeFutures,
				Side:         model.SideShort,
				TakeProfit:   f(55000),
			},
			price:      54900,
			wantReason: ReasonTakeProfit,
			wantHit:    true,
		},
		{
			name: "short not hit between levels",
			position: model.Position{
				PositionType: model.PositionTypeFutures,
				Side:         model.SideShort,
				StopLoss:     f(62000),
				TakeProfit:   f(55000),
			},
			price:   60000,
			wantHit: false,
		},
		{
			name: "futures long liquidation dominates stop loss",
			position: model.Position{
				PositionType:     model.PositionTypeFutures,
				Side:             model.SideLong,
				LiquidationPrice: f(54000),
				StopLoss:         f(56000),
			},
			price:      53000,
			wantReason: ReasonLiquidation,
			wantHit:    true,
		},
		{
			name: "futures short liquidation on rise",
			position: model.Position{
				PositionType:     model.PositionTypeFutures,
				Side:             model.SideShort,
				LiquidationPrice: f(66000),
			},
			price:      66000,
			wantReason: ReasonLiquidation,
			wantHit:    true,
		},
		{
			name: "no thresholds configured",
			position: model.Position{
				PositionType: model.PositionTypeSpot,
				Side:         model.SideBuy,
			},
			price:   1,
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, hit := RiskDecision(&tt.position, tt.price)
			require.Equal(t, tt.wantHit, hit)
			require.Equal(t, tt.wantReason, reason)
		})
	}
}
