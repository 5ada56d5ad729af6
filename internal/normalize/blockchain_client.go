package normalize

import (
	"context"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
)

// TxInput is one input of a resolved on-chain transaction: the outpoint it
// spends and, if known, the address and amount it spent.
type TxInput struct {
	Outpoint ids.Outpoint
	Address  string
	Amount   decimal.Decimal
}

// TxOutput is one output of a resolved on-chain transaction.
type TxOutput struct {
	Index   uint32
	Address string
	Amount  decimal.Decimal
}

// RawTx is everything the normalizer needs from a resolved on-chain
// transaction: who paid whom, how much, and the miner fee.
type RawTx struct {
	TxID    ids.TxID
	Inputs  []TxInput
	Outputs []TxOutput
	Fee     decimal.Decimal
}

// BlockchainClient resolves a txid into its inputs, outputs, and fee. The
// interface is declared here, where it is consumed, per Go convention; the
// concrete implementation and its memoized cache live in
// internal/blockchain so the normalizer never depends on a specific
// backend.
type BlockchainClient interface {
	ResolveTx(ctx context.Context, txid ids.TxID) (RawTx, error)
}
