// Package lotstore implements the per-(account, asset) FIFO lot queue and
// the persistent AccountState that owns it.
//
// The splitting algorithm is the same one the teacher's LotQueue.Sell
// implements: pop the oldest lot, split it against remaining demand, push
// any unconsumed remainder back. This package generalizes that single
// in-memory queue to many (account, asset) queues held by one AccountState,
// adds UTXO-keyed consumption for on-chain BTC (the teacher's ledger-cli
// domain has no notion of an individual UTXO), and always returns
// EventTradeAtom-shaped results instead of the teacher's parallel
// lot/inventory/basis slices.
package lotstore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/taxerr"
)

// Origin tags how a Lot came into existence.
type OriginKind string

const (
	OriginOnChainUTXO  OriginKind = "on-chain-utxo"
	OriginExchangeBuy  OriginKind = "exchange-buy"
	OriginIncome       OriginKind = "income"
	OriginBootstrap    OriginKind = "bootstrap"
	OriginInternalMove OriginKind = "internal-move" // non-UTXO side of a transfer between the user's own accounts
)

// Origin records where a Lot came from, for provenance and for the
// UTXO-keyed consumption path.
type Origin struct {
	Kind     OriginKind
	RowID    ids.RowID     // exchange-buy, income, bootstrap
	Outpoint ids.Outpoint  // on-chain-utxo
}

// Lot is an immutable acquisition of some quantity of an asset at a
// per-unit USD basis. A split never mutates a Lot in place; it produces
// two new Lots and retires the original's id.
type Lot struct {
	ID               ids.LotID
	Asset            money.Asset
	Remaining        decimal.Decimal
	BasisPerUnitUSD  decimal.Decimal
	AcquiredAt       time.Time
	Origin           Origin
	SplitGen         int // how many times this lot's lineage has split, for id derivation; persisted so a checkpoint restore never collides with pre-checkpoint fragment ids
}

func (l Lot) originKey() string {
	switch l.Origin.Kind {
	case OriginOnChainUTXO:
		return fmt.Sprintf("%s:%s", l.Origin.Kind, l.Origin.Outpoint)
	default:
		return fmt.Sprintf("%s:%s", l.Origin.Kind, l.Origin.RowID)
	}
}

// NewLot constructs a fresh Lot with a deterministic id derived from its
// origin. remaining must be strictly positive.
func NewLot(asset money.Asset, remaining, basisPerUnitUSD decimal.Decimal, acquiredAt time.Time, origin Origin) (Lot, error) {
	if remaining.Sign() <= 0 {
		return Lot{}, fmt.Errorf("lotstore: new lot must have positive remaining amount, got %s", remaining)
	}
	if basisPerUnitUSD.Sign() < 0 {
		return Lot{}, fmt.Errorf("lotstore: new lot must have non-negative basis, got %s", basisPerUnitUSD)
	}
	l := Lot{
		Asset:           asset,
		Remaining:       remaining,
		BasisPerUnitUSD: basisPerUnitUSD,
		AcquiredAt:      acquiredAt,
		Origin:          origin,
	}
	l.ID = ids.NewLotID(l.originKey(), 0)
	return l, nil
}

// split produces the consumed fragment (amount) and the retained fragment
// (remainder), inheriting origin metadata and acquired_at. The consumed
// fragment gets SplitGen+1 and the retained fragment SplitGen+2, so each
// id differs from the original's and from the other's.
func (l Lot) split(amount decimal.Decimal) (consumed, retained Lot) {
	consumed = l
	consumed.Remaining = amount
	consumed.SplitGen = l.SplitGen + 1
	consumed.ID = ids.NewLotID(l.originKey(), consumed.SplitGen)

	retained = l
	retained.Remaining = l.Remaining.Sub(amount)
	retained.SplitGen = l.SplitGen + 2
	retained.ID = ids.NewLotID(l.originKey(), retained.SplitGen)
	return consumed, retained
}

// ConsumedAtom is one lot (or lot fragment) consumed by a single
// disposition.
type ConsumedAtom struct {
	LotID           ids.LotID
	Asset           money.Asset
	AmountConsumed  decimal.Decimal
	LotBasisPerUnit decimal.Decimal
	AcquiredAt      time.Time
	Origin          Origin
}

// Queue is an ordered sequence of Lots for one (account, asset) pair.
// Insertion order is acquisition order is consumption order (FIFO).
type Queue struct {
	lots []Lot
}

// Push appends lot to the tail of the queue.
func (q *Queue) Push(lot Lot) {
	q.lots = append(q.lots, lot)
}

// Balance returns the sum of remaining amounts across every lot in the
// queue.
func (q *Queue) Balance() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range q.lots {
		sum = sum.Add(l.Remaining)
	}
	return sum
}

// Len reports the number of lots currently in the queue.
func (q *Queue) Len() int { return len(q.lots) }

// Consume pops from the head of the queue, splitting the head lot if it
// exceeds remaining demand, until amount has been fully accounted for.
// Fails with InsufficientBalance if the queue's total is below amount.
func (q *Queue) Consume(amount decimal.Decimal) ([]ConsumedAtom, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("lotstore: consume requires positive amount, got %s", amount)
	}
	if q.Balance().LessThan(amount) {
		return nil, taxerr.New(taxerr.InsufficientBalance,
			fmt.Sprintf("requested %s, only %s available across %d lots", amount, q.Balance(), q.Len()), nil)
	}

	var atoms []ConsumedAtom
	remaining := amount

	for remaining.Sign() > 0 {
		head := q.lots[0]
		q.lots = q.lots[1:]

		if head.Remaining.LessThanOrEqual(remaining) {
			// whole lot consumed
			atoms = append(atoms, atomFromLot(head, head.Remaining))
			remaining = remaining.Sub(head.Remaining)
			continue
		}

		// partial: split into consumed (at head of consumption) and
		// retained (goes back to the front of the queue, keeping acquired_at)
		consumed, retained := head.split(remaining)
		atoms = append(atoms, atomFromLot(consumed, remaining))
		q.lots = append([]Lot{retained}, q.lots...)
		remaining = decimal.Zero
	}

	return atoms, nil
}

func atomFromLot(l Lot, amount decimal.Decimal) ConsumedAtom {
	return ConsumedAtom{
		LotID:           l.ID,
		Asset:           l.Asset,
		AmountConsumed:  amount,
		LotBasisPerUnit: l.BasisPerUnitUSD,
		AcquiredAt:      l.AcquiredAt,
		Origin:          l.Origin,
	}
}

// ConsumeUTXO consumes the specific UTXO-keyed lot identified by outpoint,
// wholly. Unlike Consume, this does not respect FIFO position: on-chain
// transaction inputs name specific UTXOs, not a queue offset. Fails if the
// outpoint is not present.
func (q *Queue) ConsumeUTXO(outpoint ids.Outpoint) (ConsumedAtom, error) {
	for i, l := range q.lots {
		if l.Origin.Kind == OriginOnChainUTXO && l.Origin.Outpoint == outpoint {
			q.lots = append(q.lots[:i], q.lots[i+1:]...)
			return atomFromLot(l, l.Remaining), nil
		}
	}
	return ConsumedAtom{}, taxerr.New(taxerr.InsufficientBalance,
		fmt.Sprintf("no lot held for outpoint %s", outpoint), nil)
}

// Snapshot returns a value copy of the queue's lots, in FIFO order, for
// checkpoint serialization.
func (q *Queue) Snapshot() []Lot {
	out := make([]Lot, len(q.lots))
	copy(out, q.lots)
	return out
}

// Restore replaces the queue's contents from a prior snapshot, preserving
// order.
func (q *Queue) Restore(lots []Lot) {
	q.lots = append([]Lot(nil), lots...)
}
