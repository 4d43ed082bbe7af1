package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTradeTriggerSatisfied(t *testing.T) {
	tests := []struct {
		name      string
		condition string
		target    float64
		price     float64
		want      bool
	}{
		{"above met when higher", TriggerConditionAbove, 60000, 60001, true},
		{"above met at exact target", TriggerConditionAbove, 60000, 60000, true},
		{"above not met when lower", TriggerConditionAbove, 60000, 59999, false},
		{"below met when lower", TriggerConditionBelow, 60000, 59999, true},
		{"below met at exact target", TriggerConditionBelow, 60000, 60000, true},
		{"below not met when higher", TriggerConditionBelow, 60000, 60001, false},
		{"unknown condition never fires", "between", 60000, 60000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trig := TradeTrigger{Condition: tt.condition, TargetPrice: tt.target}
			require.Equal(t, tt.want, trig.Satisfied(tt.price))
		})
	}
}

func TestPositionMarkPnl(t *testing.T) {
	long := Position{Side: SideLong, AverageEntryPrice: 60000, Size: 0.5}
	require.InDelta(t, 500, long.MarkPnl(61000), 1e-9)
	require.InDelta(t, -500, long.MarkPnl(59000), 1e-9)

	short := Position{Side: SideShort, AverageEntryPrice: 60000, Size: 0.5}
	require.InDelta(t, -500, short.MarkPnl(61000), 1e-9)
	require.InDelta(t, 500, short.MarkPnl(59000), 1e-9)

	spot := Position{Side: SideBuy, AverageEntryPrice: 50000, Size: 0.02}
	require.True(t, spot.IsLong())
	require.InDelta(t, 200, spot.MarkPnl(60000), 1e-9)
}
