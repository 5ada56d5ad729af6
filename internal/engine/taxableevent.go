// Package engine is the simulator: it consumes a merged NormalizedEvent
// stream, mutates a lotstore.AccountState, and emits TaxableEvents.
//
// The per-event handling here is the generalized, CSV-domain descendant of
// the teacher's "lot" operation (op_lot.go), which walked ledger-cli
// transactions classifying each as a move or a trade and attaching
// inventory/basis/gain splits. Where the teacher worked one ledger-cli
// transaction at a time, this package works one NormalizedEvent at a time
// off the merger's single ordered stream, and keeps buy/sell/margin/income
// handling as explicit per-Kind branches rather than the teacher's
// isTrade-vs-move fork.
package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/money"
)

// Category classifies a TaxableEvent for reporting purposes.
type Category string

const (
	Capital        Category = "Capital"
	Margin         Category = "Margin"
	MarginInterest Category = "MarginInterest"
	OrdinaryIncome Category = "OrdinaryIncome"
	Wash           Category = "Wash" // reserved, not computed by this engine
)

// Sourcing labels the output-labeling split the Bona Fide Residency
// election applies to an atom's basis line (§4.5); Unsplit is used for
// every atom when no election is in effect.
type Sourcing string

const (
	Unsplit         Sourcing = ""
	USSourced       Sourcing = "us-sourced"
	TerritorySourced Sourcing = "territory-sourced"
)

// EventTradeAtom records one lot (or lot fragment) consumed by one
// disposition, plus everything Form 8949 needs to render it as a row.
type EventTradeAtom struct {
	LotID              ids.LotID
	Asset              money.Asset
	AmountConsumed     decimal.Decimal
	LotBasisPerUnit    decimal.Decimal
	ProceedsPerUnitUSD decimal.Decimal
	AcquiredAt         time.Time
	DisposedAt         time.Time
	ShortOrLongTerm    Term
	Sourcing           Sourcing
	Origin             lotstore.Origin
}

// Term is the IRS short/long-term holding period classification.
type Term string

const (
	ShortTerm Term = "short-term"
	LongTerm  Term = "long-term"
)

// classifyTerm applies the spec's holding-period rule: long-term iff the
// disposition is at least one year (by calendar date) after acquisition.
func classifyTerm(acquiredAt, disposedAt time.Time) Term {
	threshold := acquiredAt.UTC().AddDate(1, 0, 0)
	if !disposedAt.UTC().Before(threshold) {
		return LongTerm
	}
	return ShortTerm
}

// TaxableEvent is one reportable disposition, income recognition, or
// margin-related realization.
type TaxableEvent struct {
	DispositionTimestamp time.Time
	AssetSold            money.Asset
	TotalAmount          decimal.Decimal
	ProceedsUSD          decimal.Decimal
	FeeUSD               decimal.Decimal
	TradeDetails         []EventTradeAtom
	Category             Category

	// Provenance ties the TaxableEvent back to the NormalizedEvent(s) that
	// produced it, for report lineage.
	SourceFile string
	SourceRow  int
}

func (t TaxableEvent) sumConsumed() decimal.Decimal {
	sum := decimal.Zero
	for _, a := range t.TradeDetails {
		sum = sum.Add(a.AmountConsumed)
	}
	return sum
}
