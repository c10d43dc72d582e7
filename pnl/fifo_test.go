package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viktsys/pnldash/models"
)

func TestPosition_Close(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		sell        string
		wantMatched string
		wantCost    string
		wantLots    int
	}{
		{"within first lot", "4", "4", "4", 2},
		{"exactly first lot", "10", "10", "10", 1},
		{"spans two lots", "15", "15", "20", 1},
		{"drains everything", "20", "20", "30", 0},
		{"beyond inventory", "25", "20", "30", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := &Position{Pair: "BTCUSDT"}
			pos.Open(dec("10"), dec("10"), now)
			pos.Open(dec("10"), dec("20"), now.Add(time.Hour))

			matched, cost := pos.Close(dec(tt.sell))
			assertDecimal(t, tt.wantMatched, matched)
			assertDecimal(t, tt.wantCost, cost)
			assert.Len(t, pos.Lots(), tt.wantLots)
		})
	}
}

func TestPosition_SnapshotAverageCost(t *testing.T) {
	pos := &Position{Pair: "ETHUSDT"}
	assert.True(t, pos.Snapshot().AverageUnitCost.IsZero())

	pos.Open(dec("1"), dec("1000"), time.Now())
	pos.Open(dec("3"), dec("3600"), time.Now())

	snap := pos.Snapshot()
	assertDecimal(t, "4", snap.Amount)
	assertDecimal(t, "4600", snap.Cost)
	assertDecimal(t, "1150", snap.AverageUnitCost)
	assertDecimal(t, "1200", pos.Lots()[1].UnitCost())
}

func TestState_ApplyZeroAmounts(t *testing.T) {
	state := NewState()

	r := state.Apply(makeTrade("BTCUSDT", "2024-01-01T00:00:00Z", models.SideBuy, "100", "0", "0", "0"))
	assert.Equal(t, AnomalyNone, r.Anomaly)
	assert.Equal(t, 1, state.IgnoredBuys)
	assert.Nil(t, state.Position("BTCUSDT"))

	r = state.Apply(makeTrade("BTCUSDT", "2024-01-01T01:00:00Z", models.SideSell, "100", "0", "5", "0.01"))
	assert.Equal(t, AnomalyUnmatched, r.Anomaly)
	assert.True(t, r.Realized.IsZero())
}

func TestState_PairsAreIndependent(t *testing.T) {
	state := NewState()
	state.Apply(makeTrade("BTCUSDT", "2024-01-01T00:00:00Z", models.SideBuy, "100", "1", "100", "0"))

	r := state.Apply(makeTrade("ETHUSDT", "2024-01-01T01:00:00Z", models.SideSell, "10", "1", "10", "0"))
	assert.Equal(t, AnomalyUnmatched, r.Anomaly)

	snap := state.Snapshot()
	require.Len(t, snap, 1)
	assertDecimal(t, "1", snap["BTCUSDT"].Amount)
}

func TestReplay_UsesGivenState(t *testing.T) {
	trades := []models.Trade{
		makeTrade("BTCUSDT", "2024-01-01T00:00:00Z", models.SideBuy, "100", "2", "200", "0"),
		makeTrade("BTCUSDT", "2024-01-02T00:00:00Z", models.SideSell, "150", "1", "150", "0.5"),
	}

	state, realizations := Replay(NewState(), trades)
	require.Len(t, realizations, 2)
	assertDecimal(t, "49.5", realizations[1].Realized)
	assertDecimal(t, "1", realizations[1].Matched)
	assertDecimal(t, "100", realizations[1].CostBasis)
	assertDecimal(t, "1", state.Position("BTCUSDT").Snapshot().Amount)
}

func TestSortTrades(t *testing.T) {
	trades := []models.Trade{
		makeTrade("A", "2024-01-02T00:00:00Z", models.SideBuy, "1", "1", "1", "0"),
		makeTrade("B", "2024-01-01T00:00:00Z", models.SideUnknown, "1", "1", "1", "0"),
		makeTrade("C", "2024-01-01T00:00:00Z", models.SideSell, "1", "1", "1", "0"),
		makeTrade("D", "2024-01-01T00:00:00Z", models.SideBuy, "1", "1", "1", "0"),
		makeTrade("E", "2024-01-01T00:00:00Z", models.SideBuy, "1", "1", "1", "0"),
	}

	sorted := SortTrades(trades)

	var order []string
	for _, tr := range sorted {
		order = append(order, tr.Pair)
	}
	assert.Equal(t, []string{"D", "E", "C", "B", "A"}, order)
	assert.Equal(t, "A", trades[0].Pair)
}
