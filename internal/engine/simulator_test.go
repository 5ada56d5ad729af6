package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/rateoracle"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("bad date %q: %v", s, err)
	}
	return ts
}

func provenance(file string, row int) ids.RowID {
	return ids.RowID{File: file, Row: row}
}

func staticOracle(t *testing.T, btcusd string) *rateoracle.Oracle {
	t.Helper()
	return rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, btcusd),
	})
}

// scenario 1: buy one lot, sell it in full — simplest possible capital
// disposition.
func TestSimulator_SimpleBuySell(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "30000"),
	})
	state := lotstore.New()
	sim := New(state, oracle, nil)

	stream := []normalize.Event{
		{
			Kind: normalize.TradeLeg, Timestamp: date(t, "2020-01-01"),
			Provenance: provenance("trades.csv", 1), AccountKind: normalize.AccountExchange,
			Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "1"),
			CounterAsset: "USD", CounterAmount: mustDecimal(t, "10000"),
		},
		{
			Kind: normalize.TradeLeg, Timestamp: date(t, "2021-06-01"),
			Provenance: provenance("trades.csv", 2), AccountKind: normalize.AccountExchange,
			Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "-1"),
			CounterAsset: "USD", CounterAmount: mustDecimal(t, "35000"),
		},
	}

	events, err := sim.Run(stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 taxable event, got %d", len(events))
	}
	disp := events[0]
	if disp.Category != Capital {
		t.Fatalf("expected Capital, got %s", disp.Category)
	}
	if !disp.ProceedsUSD.Equal(mustDecimal(t, "35000")) {
		t.Fatalf("proceeds = %s, want 35000", disp.ProceedsUSD)
	}
	if len(disp.TradeDetails) != 1 {
		t.Fatalf("expected 1 trade atom, got %d", len(disp.TradeDetails))
	}
	atom := disp.TradeDetails[0]
	if !atom.LotBasisPerUnit.Equal(mustDecimal(t, "10000")) {
		t.Fatalf("basis/unit = %s, want 10000", atom.LotBasisPerUnit)
	}
	if atom.ShortOrLongTerm != LongTerm {
		t.Fatalf("expected long-term, got %s", atom.ShortOrLongTerm)
	}
}

// scenario 2: three buys at different prices, one sale spanning all three
// lots — exercises FIFO consumption order and per-atom basis.
func TestSimulator_ThreeBuysOneSell(t *testing.T) {
	oracle := staticOracle(t, "40000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	buy := func(row int, when string, amount, cost string) normalize.Event {
		return normalize.Event{
			Kind: normalize.TradeLeg, Timestamp: date(t, when),
			Provenance: provenance("trades.csv", row), AccountKind: normalize.AccountExchange,
			Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, amount),
			CounterAsset: "USD", CounterAmount: mustDecimal(t, cost),
		}
	}
	stream := []normalize.Event{
		buy(1, "2019-01-01", "1", "8000"),
		buy(2, "2019-06-01", "1", "10000"),
		buy(3, "2020-01-01", "1", "7000"),
		{
			Kind: normalize.TradeLeg, Timestamp: date(t, "2021-01-01"),
			Provenance: provenance("trades.csv", 4), AccountKind: normalize.AccountExchange,
			Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "-2.5"),
			CounterAsset: "USD", CounterAmount: mustDecimal(t, "100000"),
		},
	}

	events, err := sim.Run(stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 taxable event, got %d", len(events))
	}
	disp := events[0]
	if len(disp.TradeDetails) != 3 {
		t.Fatalf("expected 3 trade atoms (spanning all 3 lots), got %d", len(disp.TradeDetails))
	}
	if !disp.TradeDetails[0].AmountConsumed.Equal(mustDecimal(t, "1")) {
		t.Fatalf("first atom should consume the whole oldest lot, got %s", disp.TradeDetails[0].AmountConsumed)
	}
	if !disp.TradeDetails[2].AmountConsumed.Equal(mustDecimal(t, "0.5")) {
		t.Fatalf("third atom should be a partial consumption of 0.5, got %s", disp.TradeDetails[2].AmountConsumed)
	}
	if remaining := state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "BTC"}).Balance(); !remaining.Equal(mustDecimal(t, "0.5")) {
		t.Fatalf("expected 0.5 BTC left in queue, got %s", remaining)
	}
}

// scenario 3: an internal transfer (exchange withdrawal to a wallet deposit,
// grouped by ref_group_id) preserves basis and acquired_at, and the
// 0.0002 BTC by which the outflow leg exceeds the inflow leg produces no
// TaxableEvent of its own — it is a non-taxable transfer, full stop.
func TestSimulator_InternalTransferPreservesBasis(t *testing.T) {
	oracle := staticOracle(t, "30000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	acquiredAt := date(t, "2019-03-01")
	lot, err := lotstore.NewLot("BTC", mustDecimal(t, "2"), mustDecimal(t, "9000"), acquiredAt,
		lotstore.Origin{Kind: lotstore.OriginExchangeBuy, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "BTC"}).Push(lot)

	stream := []normalize.Event{
		{
			Kind: normalize.InternalMove, Timestamp: date(t, "2020-05-01"),
			Provenance: provenance("ledger.csv", 10), RefGroupID: "xfer-1",
			AccountKind: normalize.AccountExchange, Account: "kraken",
			Asset: "BTC", Amount: mustDecimal(t, "-2"),
		},
		{
			Kind: normalize.InternalMove, Timestamp: date(t, "2020-05-01"),
			Provenance: provenance("ledger.csv", 11), RefGroupID: "xfer-1",
			AccountKind: normalize.AccountWallet, Account: "cold-wallet",
			Asset: "BTC", Amount: mustDecimal(t, "1.9998"),
		},
	}

	events, err := sim.Run(stream)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("an internal transfer must not emit a TaxableEvent, got %d", len(events))
	}

	walletBal := state.WalletQueue(lotstore.WalletKey{WalletID: "cold-wallet", Asset: "BTC"}).Balance()
	if !walletBal.Equal(mustDecimal(t, "1.9998")) {
		t.Fatalf("wallet balance = %s, want 1.9998", walletBal)
	}
	atoms, err := state.WalletQueue(lotstore.WalletKey{WalletID: "cold-wallet", Asset: "BTC"}).Consume(mustDecimal(t, "1.9998"))
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !atoms[0].LotBasisPerUnit.Equal(mustDecimal(t, "9000")) {
		t.Fatalf("basis should have transferred unchanged, got %s", atoms[0].LotBasisPerUnit)
	}
	if !atoms[0].AcquiredAt.Equal(acquiredAt) {
		t.Fatalf("acquired_at should have transferred unchanged, got %s", atoms[0].AcquiredAt)
	}
}

// scenario 4: open a long margin position, close it at a higher price —
// gain realized as Margin category, sized on the position's fixed opening
// cost vs. the closing market value.
func TestSimulator_MarginLongCloseGain(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "35000"),
	})
	state := lotstore.New()
	sim := New(state, oracle, nil)

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
	if err := sim.handleEvent(closeEvt); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(sim.events) != 1 {
		t.Fatalf("expected 1 taxable event, got %d", len(sim.events))
	}
	ev := sim.events[0]
	if ev.Category != Margin {
		t.Fatalf("expected Margin category, got %s", ev.Category)
	}
	gain := ev.ProceedsUSD.Sub(ev.TradeDetails[0].LotBasisPerUnit.Mul(ev.TotalAmount))
	if !gain.Equal(mustDecimal(t, "5000")) {
		t.Fatalf("expected $5000 gain, got %s", gain)
	}
	if ev.TradeDetails[0].ShortOrLongTerm != ShortTerm {
		t.Fatalf("two-month hold should classify short-term, got %s", ev.TradeDetails[0].ShortOrLongTerm)
	}
}

// scenario 4b: a margin close at a loss draws the shortfall from collateral
// as an ordinary zero-proceeds Capital disposition.
func TestSimulator_MarginCloseLossDrawsCollateral(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "25000"),
		{Base: "USD", Quote: "USD"}: mustDecimal(t, "1"),
	})
	state := lotstore.New()
	sim := New(state, oracle, nil)

	collateralLot, err := lotstore.NewLot("USD", mustDecimal(t, "10000"), mustDecimal(t, "1"), date(t, "2020-01-01"),
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
	if err := sim.handleEvent(closeEvt); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(sim.events) != 2 {
		t.Fatalf("expected Margin event + collateral-draw Capital event, got %d", len(sim.events))
	}
	draw := sim.events[0]
	if draw.Category != Capital {
		t.Fatalf("expected collateral draw to be Capital, got %s", draw.Category)
	}
	if !draw.ProceedsUSD.IsZero() {
		t.Fatalf("collateral draw should realize zero proceeds, got %s", draw.ProceedsUSD)
	}
	if !draw.TotalAmount.Equal(mustDecimal(t, "5000")) {
		t.Fatalf("expected $5000 of USD collateral consumed, got %s", draw.TotalAmount)
	}
}

// scenario 5: settling a margin loan repays the borrowed asset as an
// ordinary disposition; no separate P/L beyond what the repayment leg
// itself realizes.
func TestSimulator_MarginSettle(t *testing.T) {
	oracle := staticOracle(t, "30000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	lot, err := lotstore.NewLot("BTC", mustDecimal(t, "1"), mustDecimal(t, "20000"), date(t, "2020-01-01"),
		lotstore.Origin{Kind: lotstore.OriginExchangeBuy, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "BTC"}).Push(lot)

	open := normalize.Event{
		Kind: normalize.MarginOpen, Timestamp: date(t, "2021-01-01"),
		Provenance: provenance("margin.csv", 1), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", MarginSide: "short",
		Amount: mustDecimal(t, "1"), CounterAsset: "USD", CounterAmount: mustDecimal(t, "30000"),
		CounterpartyAccount: "collateral:USD",
	}
	if err := sim.handleEvent(open); err != nil {
		t.Fatalf("open: %v", err)
	}

	settle := normalize.Event{
		Kind: normalize.MarginSettle, Timestamp: date(t, "2021-02-01"),
		Provenance: provenance("margin.csv", 2), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Asset: "BTC", Amount: mustDecimal(t, "-1"),
	}
	if err := sim.handleEvent(settle); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if len(sim.events) != 1 {
		t.Fatalf("expected 1 taxable event, got %d", len(sim.events))
	}
	if sim.events[0].Category != Capital {
		t.Fatalf("expected the settle repayment leg to be Capital, got %s", sim.events[0].Category)
	}
	pos := sim.state.OpenMargin[ids.NewMarginPositionID(open.Provenance.String())]
	if pos.Status != lotstore.MarginSettledStatus {
		t.Fatalf("expected position status settled, got %s", pos.Status)
	}
}

// rollover interest is recognized the instant it accrues, not deferred to
// the position's eventual close.
func TestSimulator_MarginRolloverRecognizedImmediately(t *testing.T) {
	oracle := staticOracle(t, "30000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

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

	rollover := normalize.Event{
		Kind: normalize.MarginRollover, Timestamp: date(t, "2021-01-02"),
		Provenance: provenance("margin.csv", 2), AccountKind: normalize.AccountExchange,
		Account: "kraken", MarginPair: "BTC/USD", Asset: "USD", Amount: mustDecimal(t, "-15"),
	}
	if err := sim.handleEvent(rollover); err != nil {
		t.Fatalf("rollover: %v", err)
	}

	if len(sim.events) != 1 {
		t.Fatalf("expected the rollover to emit immediately, got %d events", len(sim.events))
	}
	if sim.events[0].Category != MarginInterest {
		t.Fatalf("expected MarginInterest, got %s", sim.events[0].Category)
	}
	if !sim.events[0].FeeUSD.Equal(mustDecimal(t, "15")) {
		t.Fatalf("expected $15 interest, got %s", sim.events[0].FeeUSD)
	}
}

// scenario 6: a disposition of a lot acquired before the Bona Fide
// Residency election start, disposed after it, is split 50/50 between
// US-sourced (original basis) and territory-sourced (oracle rate at
// acquisition) halves; the two halves still sum to the full consumed
// amount.
func TestSimulator_BonaFideResidencySplit(t *testing.T) {
	oracle := rateoracle.NewStatic(map[rateoracle.Pair]decimal.Decimal{
		{Base: "BTC", Quote: "USD"}: mustDecimal(t, "9000"),
	})
	state := lotstore.New()
	electionStart := date(t, "2019-06-01")
	state.BonaFideResidencyStart = &electionStart
	sim := New(state, oracle, nil)

	lot, err := lotstore.NewLot("BTC", mustDecimal(t, "1"), mustDecimal(t, "4000"), date(t, "2019-01-01"),
		lotstore.Origin{Kind: lotstore.OriginExchangeBuy, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "BTC"}).Push(lot)

	sell := normalize.Event{
		Kind: normalize.TradeLeg, Timestamp: date(t, "2020-01-01"),
		Provenance: provenance("trades.csv", 1), AccountKind: normalize.AccountExchange,
		Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "-1"),
		CounterAsset: "USD", CounterAmount: mustDecimal(t, "12000"),
	}
	events, err := sim.Run([]normalize.Event{sell})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || len(events[0].TradeDetails) != 2 {
		t.Fatalf("expected a single disposition split into 2 atoms, got %+v", events)
	}
	us, territory := events[0].TradeDetails[0], events[0].TradeDetails[1]
	if us.Sourcing != USSourced || territory.Sourcing != TerritorySourced {
		t.Fatalf("expected US-sourced then territory-sourced atoms, got %s then %s", us.Sourcing, territory.Sourcing)
	}
	sum := us.AmountConsumed.Add(territory.AmountConsumed)
	if !sum.Equal(mustDecimal(t, "1")) {
		t.Fatalf("split halves must sum to the full amount, got %s", sum)
	}
	if !us.LotBasisPerUnit.Equal(mustDecimal(t, "4000")) {
		t.Fatalf("US-sourced half should keep the declared basis, got %s", us.LotBasisPerUnit)
	}
	if !territory.LotBasisPerUnit.Equal(mustDecimal(t, "9000")) {
		t.Fatalf("territory-sourced half should use the acquisition-date oracle rate, got %s", territory.LotBasisPerUnit)
	}
}

// a lot consumed to exactly zero remaining should leave nothing behind in
// the queue (no zero-remaining lot lingering for the next Consume to trip
// over).
func TestSimulator_LotConsumedExactlyToZero(t *testing.T) {
	oracle := staticOracle(t, "40000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	buy := normalize.Event{
		Kind: normalize.TradeLeg, Timestamp: date(t, "2020-01-01"),
		Provenance: provenance("trades.csv", 1), AccountKind: normalize.AccountExchange,
		Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "1"),
		CounterAsset: "USD", CounterAmount: mustDecimal(t, "10000"),
	}
	sell := normalize.Event{
		Kind: normalize.TradeLeg, Timestamp: date(t, "2020-06-01"),
		Provenance: provenance("trades.csv", 2), AccountKind: normalize.AccountExchange,
		Account: "kraken", Asset: "BTC", Amount: mustDecimal(t, "-1"),
		CounterAsset: "USD", CounterAmount: mustDecimal(t, "40000"),
	}
	if _, err := sim.Run([]normalize.Event{buy, sell}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	q := state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: "kraken", Asset: "BTC"})
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after full consumption, got %d lots", q.Len())
	}
	if !q.Balance().IsZero() {
		t.Fatalf("expected zero balance, got %s", q.Balance())
	}
}

// classifyTerm is a pure calendar-date boundary: exactly one year minus a
// day is short-term, exactly one year is long-term.
func TestClassifyTerm_Boundary(t *testing.T) {
	acquired := date(t, "2020-01-01")
	if got := classifyTerm(acquired, date(t, "2020-12-31")); got != ShortTerm {
		t.Fatalf("one year minus a day should be short-term, got %s", got)
	}
	if got := classifyTerm(acquired, date(t, "2021-01-01")); got != LongTerm {
		t.Fatalf("exactly one year should be long-term, got %s", got)
	}
}

// an income recognition event both pushes a new basis-at-FMV lot and emits
// an OrdinaryIncome TaxableEvent sized at fair market value on receipt.
func TestSimulator_IncomeRecognition(t *testing.T) {
	oracle := staticOracle(t, "45000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	income := normalize.Event{
		Kind: normalize.Income, Timestamp: date(t, "2021-01-01"),
		Provenance: provenance("wallet.csv", 1), AccountKind: normalize.AccountWallet,
		Account: "mining-wallet", Asset: "BTC", Amount: mustDecimal(t, "0.1"),
	}
	events, err := sim.Run([]normalize.Event{income})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 1 || events[0].Category != OrdinaryIncome {
		t.Fatalf("expected 1 OrdinaryIncome event, got %+v", events)
	}
	if !events[0].ProceedsUSD.Equal(mustDecimal(t, "4500")) {
		t.Fatalf("FMV at receipt = %s, want 4500", events[0].ProceedsUSD)
	}
	bal := state.WalletQueue(lotstore.WalletKey{WalletID: "mining-wallet", Asset: "BTC"}).Balance()
	if !bal.Equal(mustDecimal(t, "0.1")) {
		t.Fatalf("expected the income lot to be pushed, balance = %s", bal)
	}
}

// the part of an InternalMove outflow with no corresponding inflow in the
// group (the miner fee) still must not fail the run — it is consumed and
// its value vanishes from the books, exactly like real on-chain fee loss.
func TestSimulator_InternalMoveGroupWithUnmatchedFeeLeg(t *testing.T) {
	oracle := staticOracle(t, "30000")
	state := lotstore.New()
	sim := New(state, oracle, nil)

	lot, err := lotstore.NewLot("BTC", mustDecimal(t, "1"), mustDecimal(t, "9000"), date(t, "2019-01-01"),
		lotstore.Origin{Kind: lotstore.OriginExchangeBuy, RowID: provenance("seed.csv", 1)})
	if err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	state.WalletQueue(lotstore.WalletKey{WalletID: "hot-wallet", Asset: "BTC"}).Push(lot)

	group := []normalize.Event{
		{
			Kind: normalize.InternalMove, Timestamp: date(t, "2020-01-01"),
			Provenance: provenance("wallet.csv", 1), RefGroupID: "move-1",
			AccountKind: normalize.AccountWallet, Account: "hot-wallet",
			Asset: "BTC", Amount: mustDecimal(t, "-1"),
		},
		{
			Kind: normalize.InternalMove, Timestamp: date(t, "2020-01-01"),
			Provenance: provenance("wallet.csv", 2), RefGroupID: "move-1",
			AccountKind: normalize.AccountWallet, Account: "cold-wallet",
			Asset: "BTC", Amount: mustDecimal(t, "0.9995"),
		},
	}
	events, err := sim.Run(group)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no TaxableEvent from an internal move, got %d", len(events))
	}
	coldBal := state.WalletQueue(lotstore.WalletKey{WalletID: "cold-wallet", Asset: "BTC"}).Balance()
	if !coldBal.Equal(mustDecimal(t, "0.9995")) {
		t.Fatalf("cold wallet balance = %s, want 0.9995", coldBal)
	}
}
