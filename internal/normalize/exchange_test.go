package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const ledgerCSV = `txid,refid,time,type,subtype,aclass,asset,amount,fee,balance
L1,REF1,2021-01-01 00:00:00,trade,,currency,USD,-30000,0,0
L2,REF1,2021-01-01 00:00:00,trade,,currency,BTC,1,0,1
`

const tradesCSV = `txid,ordertxid,pair,time,type,ordertype,price,cost,fee,vol,margin,misc,ledgers
T1,O1,BTCUSD,2021-01-01 00:00:00,buy,market,30000,30000,0,1,0,,REF1
`

func TestNormalizeExchangeLedgerSimpleTrade(t *testing.T) {
	ledgerRows, err := ReadLedgerCSV("ledger.csv", strings.NewReader(ledgerCSV))
	require.NoError(t, err)
	tradesRows, err := ReadTradesCSV("trades.csv", strings.NewReader(tradesCSV))
	require.NoError(t, err)

	events, err := NormalizeExchangeLedger("kraken", ledgerRows, tradesRows)
	require.NoError(t, err)
	require.Len(t, events, 2)

	for _, e := range events {
		require.Equal(t, TradeLeg, e.Kind)
		require.Equal(t, "REF1", e.RefGroupID)
	}
}

const marginTradesCSV = `txid,ordertxid,pair,time,type,ordertype,price,cost,fee,vol,margin,misc,ledgers
T2,O2,BTCUSD,2021-01-01 00:00:00,buy,market,30000,30000,0,1,6000,,REF2
`

const marginLedgerCSV = `txid,refid,time,type,subtype,aclass,asset,amount,fee,balance
L3,REF2,2021-01-01 00:00:00,trade,,currency,USD,-6000,0,0
`

func TestNormalizeExchangeLedgerMarginOpen(t *testing.T) {
	ledgerRows, err := ReadLedgerCSV("ledger.csv", strings.NewReader(marginLedgerCSV))
	require.NoError(t, err)
	tradesRows, err := ReadTradesCSV("trades.csv", strings.NewReader(marginTradesCSV))
	require.NoError(t, err)

	events, err := NormalizeExchangeLedger("kraken", ledgerRows, tradesRows)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, MarginOpen, events[0].Kind)
	require.Equal(t, "long", events[0].MarginSide)
}
