package lotstore

import (
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/money"
)

// EngineVersion is the current major version bound into every checkpoint
// this engine writes. Loading a checkpoint written by an incompatible
// major version fails with CheckpointVersionMismatch (see
// internal/checkpoint).
const EngineVersion = 1

// ExchangeKey identifies one (exchange, asset) balance.
type ExchangeKey struct {
	ExchangeID string
	Asset      money.Asset
}

// WalletKey identifies one (wallet, asset) balance.
type WalletKey struct {
	WalletID string
	Asset    money.Asset
}

// MarginSide is Long or Short.
type MarginSide string

const (
	MarginLong  MarginSide = "long"
	MarginShort MarginSide = "short"
)

// MarginStatus tracks a MarginPosition's lifecycle.
type MarginStatus string

const (
	MarginOpenStatus           MarginStatus = "open"
	MarginPartiallyClosed      MarginStatus = "partially-closed"
	MarginClosedStatus         MarginStatus = "closed"
	MarginSettledStatus        MarginStatus = "settled"
)

// MarginPosition is one open or historical margin trade.
type MarginPosition struct {
	ID         ids.MarginPositionID
	ExchangeID string
	OpenedAt   time.Time
	Side       MarginSide
	Pair       string     // e.g. "BTC/USD", matching the exchange's pair notation
	BaseAsset  money.Asset // the pair's base, e.g. "BTC"

	OpenedVolume      decimal.Decimal
	OpenedProceedsUSD decimal.Decimal // USD cost of the opening leg, fixed at open; basis for Close/Settle P/L

	CollateralAsset money.Asset
	RolloverFeesUSD decimal.Decimal // accumulated, informational; tax consequence realized per-rollover, not here
	Status          MarginStatus
}

// AccountState is the engine's entire persistent state: every balance,
// every open margin position, and the bona-fide-residency election. It is
// exclusively owned by the simulator during a run and is the unit the
// checkpoint serializer reads and writes.
type AccountState struct {
	ExchangeBalances map[ExchangeKey]*Queue
	OnChainBalances  map[WalletKey]*Queue
	OpenMargin       map[ids.MarginPositionID]*MarginPosition

	// BonaFideResidencyStart, if set, is the date after which dispositions
	// of lots acquired before it get a US-sourced/territory-sourced output
	// split (see internal/engine).
	BonaFideResidencyStart *time.Time

	Version int
}

// New returns an empty AccountState bound to the current engine version,
// used when no input checkpoint is supplied.
func New() *AccountState {
	return &AccountState{
		ExchangeBalances: make(map[ExchangeKey]*Queue),
		OnChainBalances:  make(map[WalletKey]*Queue),
		OpenMargin:       make(map[ids.MarginPositionID]*MarginPosition),
		Version:          EngineVersion,
	}
}

// ExchangeQueue returns (creating if necessary) the lot queue for key.
func (a *AccountState) ExchangeQueue(key ExchangeKey) *Queue {
	q, ok := a.ExchangeBalances[key]
	if !ok {
		q = &Queue{}
		a.ExchangeBalances[key] = q
	}
	return q
}

// WalletQueue returns (creating if necessary) the lot queue for key.
func (a *AccountState) WalletQueue(key WalletKey) *Queue {
	q, ok := a.OnChainBalances[key]
	if !ok {
		q = &Queue{}
		a.OnChainBalances[key] = q
	}
	return q
}
