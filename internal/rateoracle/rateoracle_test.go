package rateoracle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"src.d10.dev/taxcount/internal/money"
)

func writeTable(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestRateNearestAtOrBefore(t *testing.T) {
	dir := t.TempDir()
	vwapDir := filepath.Join(dir, "daily-vwap")
	// days: 18262 = 2020-01-01, 18263 = 2020-01-02
	writeTable(t, vwapDir, "2020-kraken-btcusd.ron", ""+
		"18262 7200.50 1000\n"+
		"18263 7300.00 1200\n",
	)

	o, err := Load(dir)
	require.NoError(t, err)

	pair := Pair{Base: money.Asset("BTC"), Quote: money.Asset("USD")}

	rate, err := o.Rate(pair, time.Date(2020, 1, 2, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "7300", rate.String())

	rate, err = o.Rate(pair, time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "7300", rate.String())

	rate, err = o.Rate(pair, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "7200.5", rate.String())
}

func TestRateMissesBeforeFirstEntry(t *testing.T) {
	dir := t.TempDir()
	vwapDir := filepath.Join(dir, "daily-vwap")
	writeTable(t, vwapDir, "2020-kraken-btcusd.ron", "18262 7200.50 1000\n")

	o, err := Load(dir)
	require.NoError(t, err)

	pair := Pair{Base: money.Asset("BTC"), Quote: money.Asset("USD")}
	_, err = o.Rate(pair, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
