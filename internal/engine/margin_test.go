package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/rateoracle"
)

// a partial close draws from the oldest open position first and leaves it
// partially-closed with a pro-rated OpenedProceedsUSD, rather than
// splitting proportionally across every open position at once; a second
// close spanning the calendar-year boundary later fully closes both.
func TestSimulator_MarginPartialCloseFIFOAcrossPositions(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "40000"),
	})
	state := lotstore.New()
	sim := New(state, oracle, nil)

	openAt := func(row int, when, volume, cost string) normalize.Event {
		return normalize.Event{
			Kind: normalize.MarginOpen, Timestamp: date(t, when),
			Provenance: provenance("margin.csv", row), AccountKind: normalize.AccountExchange,
			Account: "kraken", MarginPair: "BTC/USD", MarginSide: "long",
			Amount: mustDecimal(t, volume), CounterAsset: "USD", CounterAmount: mustDecimal(t, cost),
			CounterpartyAccount: "collateral:USD",
		}
	}
	if err := sim.handleEvent(openAt(1, "2020-11-01", "1", "30000")); err != nil {
		t.Fatalf("open 1: %v", err)
	}
	if err := sim.handleEvent(openAt(2, "2020-12-01", "1", "32000")); err != nil {
		t.Fatalf("open 2: %v", err)
	}

	// closes 0.5 BTC — less than the first (oldest) position's full volume,
	// so it must draw only from that position and leave it partially-closed.
	partial := normalize.Event{
		Kind: normalize.MarginClose, Timestamp: date(t, "2021-01-15"),
		Provenance: provenance("margin.csv", 3), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Amount: mustDecimal(t, "0.5"),
	}
	if err := sim.handleEvent(partial); err != nil {
		t.Fatalf("partial close: %v", err)
	}

	oldest := sim.oldestOpenPosition("BTC/USD")
	if oldest.Status != lotstore.MarginPartiallyClosed {
		t.Fatalf("expected the oldest position to be partially-closed, got %s", oldest.Status)
	}
	if !oldest.OpenedVolume.Equal(mustDecimal(t, "0.5")) {
		t.Fatalf("expected 0.5 BTC left open on the oldest position, got %s", oldest.OpenedVolume)
	}
	if !oldest.OpenedProceedsUSD.Equal(mustDecimal(t, "15000")) {
		t.Fatalf("expected pro-rated opening cost of 15000, got %s", oldest.OpenedProceedsUSD)
	}

	// closes the remaining 1.5 BTC in one call: 0.5 drains what's left of
	// the first position, 1.0 drains the second in full. The single
	// resulting TaxableEvent must carry one EventTradeAtom per position,
	// since the two were opened on different dates.
	rest := normalize.Event{
		Kind: normalize.MarginClose, Timestamp: date(t, "2021-02-01"),
		Provenance: provenance("margin.csv", 4), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Amount: mustDecimal(t, "1.5"),
	}
	if err := sim.handleEvent(rest); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if oldest := sim.oldestOpenPosition("BTC/USD"); oldest != nil {
		t.Fatalf("expected no open positions left on BTC/USD, found one opened at %s", oldest.OpenedAt)
	}

	final := sim.events[len(sim.events)-1]
	if len(final.TradeDetails) != 2 {
		t.Fatalf("expected a close spanning 2 positions to produce 2 trade atoms, got %d", len(final.TradeDetails))
	}
	if !final.TradeDetails[0].AmountConsumed.Equal(mustDecimal(t, "0.5")) {
		t.Fatalf("first atom should drain the first position's 0.5 remaining, got %s", final.TradeDetails[0].AmountConsumed)
	}
	if !final.TradeDetails[1].AmountConsumed.Equal(mustDecimal(t, "1")) {
		t.Fatalf("second atom should drain the second position's full 1.0, got %s", final.TradeDetails[1].AmountConsumed)
	}
	if !final.TradeDetails[0].LotBasisPerUnit.Mul(final.TradeDetails[0].AmountConsumed).Equal(mustDecimal(t, "15000")) {
		t.Fatalf("first atom's basis should reflect the first position's remaining opening cost of 15000, got %s",
			final.TradeDetails[0].LotBasisPerUnit.Mul(final.TradeDetails[0].AmountConsumed))
	}
	if !final.TradeDetails[1].LotBasisPerUnit.Mul(final.TradeDetails[1].AmountConsumed).Equal(mustDecimal(t, "32000")) {
		t.Fatalf("second atom's basis should reflect the second position's full opening cost of 32000, got %s",
			final.TradeDetails[1].LotBasisPerUnit.Mul(final.TradeDetails[1].AmountConsumed))
	}
}

// a margin loss that exceeds every available collateral asset's balance is
// a fatal InsufficientBalance error, not a silently-partial draw.
func TestSimulator_MarginLossExceedsCollateral(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "20000"),
		{Base: "USD", Quote: "USD"}: mustDecimal(t, "1"),
	})
	state := lotstore.New()
	sim := New(state, oracle, nil)

	collateralLot, err := lotstore.NewLot("USD", mustDecimal(t, "100"), mustDecimal(t, "1"), date(t, "2020-01-01"),
		lotstore.Origin{Kind: lotstore.OriginBootstrap, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed collateral: %v", err)
	}
	state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "USD"}).Push(collateralLot)

	open := normalize.Event{
		Kind: normalize.MarginOpen, Timestamp: date(t, "2021-01-01"),
		Provenance: provenance("margin.csv", 1), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", MarginSide: "long",
		Amount: mustDecimal(t, "1"), CounterAsset: "USD", CounterAmount: mustDecimal(t, "30000"),
		CounterpartyAccount: "collateral:USD",
	}
	if err := sim.handleEvent(open); err != nil {
		t.Fatalf("open: %v", err)
	}
	closeEvt := normalize.Event{
		Kind: normalize.MarginClose, Timestamp: date(t, "2021-03-01"),
		Provenance: provenance("margin.csv", 2), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Amount: mustDecimal(t, "1"),
	}
	if err := sim.handleEvent(closeEvt); err == nil {
		t.Fatalf("expected an InsufficientBalance error when collateral cannot cover the loss")
	}
}

// a margin close preferring the configured collateral preference order
// falls through to a second asset when the position's own collateral
// asset is exhausted.
func TestSimulator_MarginLossFallsThroughCollateralPreference(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "20000"),
		{Base: "USD", Quote: "USD"}: mustDecimal(t, "1"),
		{Base: "ETH", Quote: "USD"}: mustDecimal(t, "2000"),
	})
	state := lotstore.New()
	sim := New(state, oracle, []money.Asset{"ETH"})

	ethLot, err := lotstore.NewLot("ETH", mustDecimal(t, "10"), mustDecimal(t, "2000"), date(t, "2020-01-01"),
		lotstore.Origin{Kind: lotstore.OriginBootstrap, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed ETH collateral: %v", err)
	}
	state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "ETH"}).Push(ethLot)

	open := normalize.Event{
		Kind: normalize.MarginOpen, Timestamp: date(t, "2021-01-01"),
		Provenance: provenance("margin.csv", 1), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", MarginSide: "long",
		Amount: mustDecimal(t, "1"), CounterAsset: "USD", CounterAmount: mustDecimal(t, "30000"),
		CounterpartyAccount: "collateral:USD", // no USD collateral actually held
	}
	if err := sim.handleEvent(open); err != nil {
		t.Fatalf("open: %v", err)
	}
	closeEvt := normalize.Event{
		Kind: normalize.MarginClose, Timestamp: date(t, "2021-03-01"),
		Provenance: provenance("margin.csv", 2), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Amount: mustDecimal(t, "1"),
	}
	if err := sim.handleEvent(closeEvt); err != nil {
		t.Fatalf("close should fall through to ETH collateral: %v", err)
	}
	ethBal := state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "ETH"}).Balance()
	if ethBal.Equal(mustDecimal(t, "10")) {
		t.Fatalf("expected ETH collateral to have been drawn down, still at %s", ethBal)
	}
}
