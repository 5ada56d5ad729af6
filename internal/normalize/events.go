// Package normalize turns heterogeneous input rows (exchange ledger rows,
// exchange trades rows, wallet-history rows, tx-tag annotations) into a
// common stream of NormalizedEvents, the tagged union the merger and
// simulator operate on downstream.
package normalize

import (
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/money"
)

// Kind discriminates the NormalizedEvent tagged union.
type Kind string

const (
	Deposit        Kind = "Deposit"
	Withdrawal     Kind = "Withdrawal"
	TradeLeg       Kind = "TradeLeg"
	Fee            Kind = "Fee"
	Income         Kind = "Income"
	Spend          Kind = "Spend"
	InternalMove   Kind = "InternalMove"
	MarginOpen     Kind = "MarginOpen"
	MarginRollover Kind = "MarginRollover"
	MarginSettle   Kind = "MarginSettle"
	MarginClose    Kind = "MarginClose"
)

// AccountKind distinguishes an exchange-held balance from an on-chain
// wallet balance; AccountState keeps separate maps for each (§3).
type AccountKind string

const (
	AccountExchange AccountKind = "exchange"
	AccountWallet   AccountKind = "wallet"
)

// SourcePriority is the merger's fixed tie-breaker: exchange ledger rows
// sort before on-chain confirmations, which sort before tags-derived
// synthetic events, when timestamps collide.
type SourcePriority int

const (
	PriorityExchangeLedger SourcePriority = 0
	PriorityOnChain        SourcePriority = 1
	PriorityTagSynthetic   SourcePriority = 2
)

// Event is one NormalizedEvent: a tagged union over Kind, carrying every
// field any Kind might need. Which fields are meaningful is determined by
// Kind; see the per-Kind comments below.
type Event struct {
	Kind      Kind
	Timestamp time.Time

	// Provenance ties the event back to its originating file + row;
	// Timestamp, then SourcePriority, then Provenance.Row form the merger's
	// ordering key.
	Provenance     ids.RowID
	SourcePriority SourcePriority
	RefGroupID     string // joins the two legs of one exchange trade

	// AccountKind says whether Account indexes AccountState's exchange
	// balances or its on-chain (wallet) balances.
	AccountKind AccountKind
	// Account is the exchange id or wallet id whose balance this event
	// moves.
	Account string
	Asset   money.Asset
	// Amount is signed relative to Account: positive is inbound, negative
	// is outbound, matching the exchange ledger's own "amount" column
	// convention.
	Amount decimal.Decimal

	// CounterAsset/CounterAmount carry the other leg of a TradeLeg (the
	// quote currency and quote amount).
	CounterAsset  money.Asset
	CounterAmount decimal.Decimal

	// Fee is the fee charged on this event, denominated in Asset, zero if
	// none.
	Fee decimal.Decimal

	// On-chain fields.
	TxID     ids.TxID
	Outpoint ids.Outpoint // set when Asset lot tracking is UTXO-keyed

	// CounterpartyAccount names the other side of a transfer: the
	// destination account for Withdrawal/InternalMove, the source for
	// Deposit, resolved from tx-tags for on-chain events.
	CounterpartyAccount string

	// Margin fields.
	MarginPositionID ids.MarginPositionID
	MarginPair       string
	MarginSide       string // "long" or "short"

	// USDValueOverride, if set, overrides the rate-oracle-derived basis or
	// proceeds for this event (basis-overrides input, or tx-tag
	// usd_value_override).
	USDValueOverride *decimal.Decimal
}
