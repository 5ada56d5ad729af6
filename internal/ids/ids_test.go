package ids

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLotID_DeterministicAndDistinctBySplitGen(t *testing.T) {
	a := NewLotID("exchange-buy:ledger.csv:42", 0)
	b := NewLotID("exchange-buy:ledger.csv:42", 0)
	require.Equal(t, a, b)

	c := NewLotID("exchange-buy:ledger.csv:42", 1)
	require.NotEqual(t, a, c)
}

func TestNewLotID_DistinctByOrigin(t *testing.T) {
	a := NewLotID("exchange-buy:ledger.csv:42", 0)
	b := NewLotID("exchange-buy:ledger.csv:43", 0)
	require.NotEqual(t, a, b)
}

func TestNewMarginPositionID_Deterministic(t *testing.T) {
	a := NewMarginPositionID("margin.csv:7")
	b := NewMarginPositionID("margin.csv:7")
	require.Equal(t, a, b)
	require.NotEqual(t, a, NewMarginPositionID("margin.csv:8"))
}

func TestOutpointAndRowIDString(t *testing.T) {
	require.Equal(t, "abcd:1", Outpoint{TxID: "abcd", Vout: 1}.String())
	require.Equal(t, "ledger.csv:7", RowID{File: "ledger.csv", Row: 7}.String())
}
