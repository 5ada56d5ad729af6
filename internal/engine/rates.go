package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/rateoracle"
)

// usdRate resolves the USD value of one unit of asset at instant. USD
// itself is defined as 1:1. An explicit override (a tx-tag or
// basis-override usd_value_override) always wins over the oracle.
func (s *Simulator) usdRate(asset money.Asset, instant time.Time, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	if asset == money.Asset("USD") {
		return decimal.NewFromInt(1), nil
	}
	return s.oracle.Rate(rateoracle.Pair{Base: asset, Quote: money.Asset("USD")}, instant)
}
