// Package ids defines the opaque identifier types threaded through the
// engine: on-chain outpoints, exchange row ids, and lot ids.
//
// Lot ids must be stable and reproducible across runs (the engine's
// determinism requirement applies to ids too, since they appear in report
// lineage columns and in the checkpoint). Rather than random UUIDs
// (github.com/google/uuid's uuid.New, which draws from crypto/rand and
// would make two runs over the same inputs diverge), lot ids are derived
// with uuid.NewSHA1 over a canonical description of the lot's origin: a
// deterministic, content-addressed id that happens to share a wire format
// with a random UUID.
package ids

import (
	"fmt"

	"github.com/google/uuid"
)

// lotNamespace is a fixed namespace UUID scoping all lot ids this engine
// generates, so they cannot collide with UUIDs minted by unrelated
// systems that also use uuid.NewSHA1.
var lotNamespace = uuid.MustParse("2f9c9e2a-2b34-4c1a-9f0a-7a2b6a2e5b10")

// TxID is an on-chain transaction id (hex string, as returned by the
// blockchain client).
type TxID string

// Outpoint names a specific UTXO: the transaction that created it and its
// output index.
type Outpoint struct {
	TxID TxID
	Vout uint32
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// RowID identifies one row of a source input file (exchange ledger,
// trades, wallet history, tx-tags, basis overrides) by file + row index,
// the unit of provenance every NormalizedEvent and report row carries.
type RowID struct {
	File string
	Row  int
}

func (r RowID) String() string {
	return fmt.Sprintf("%s:%d", r.File, r.Row)
}

// LotID opaquely identifies one Lot for its entire lifetime, including
// after it has been fully consumed (historical EventTradeAtoms keep
// referring to it).
type LotID string

// NewLotID derives a stable LotID from a human-readable origin descriptor,
// e.g. "exchange-buy:ledger.csv:42" or "onchain-utxo:abcd...:0", plus a
// split generation counter (0 for an original lot, incremented each time a
// lot is split and a new fragment id is needed).
func NewLotID(origin string, splitGen int) LotID {
	name := fmt.Sprintf("%s#%d", origin, splitGen)
	return LotID(uuid.NewSHA1(lotNamespace, []byte(name)).String())
}

// MarginPositionID opaquely identifies one MarginPosition.
type MarginPositionID string

// NewMarginPositionID derives a stable id from the opening event's
// provenance, so replays produce the identical id.
func NewMarginPositionID(origin string) MarginPositionID {
	return MarginPositionID(uuid.NewSHA1(lotNamespace, []byte("margin:"+origin)).String())
}
