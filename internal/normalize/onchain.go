package normalize

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/taxerr"
)

// WalletOwnership answers whether an address belongs to one of the user's
// own accounts (and if so, which), so the normalizer can tell an external
// counterparty from an internal transfer between the user's own wallets.
// Populated from declared xpubs and/or manually-declared addresses, per
// §4.3.
type WalletOwnership interface {
	// OwnerOf returns the account id owning address, and true, or ("",
	// false) if address is not one of the user's own.
	OwnerOf(address string) (account string, owned bool)
}

// NormalizeWalletHistory resolves each wallet-history record's raw
// transaction via client, classifies it as Deposit/Income/Spend/InternalMove
// per §4.3, and attaches a Fee event for miner fees on user-sent
// transactions. asset is the chain's native asset (e.g. "BTC"); on-chain
// lots for it are UTXO-keyed.
func NormalizeWalletHistory(
	ctx context.Context,
	asset money.Asset,
	records []WalletHistoryRecord,
	client BlockchainClient,
	ownership WalletOwnership,
	tags *TagIndex,
) ([]Event, error) {
	var events []Event

	for _, rec := range records {
		raw, err := client.ResolveTx(ctx, ids.TxID(rec.TxID))
		if err != nil {
			return nil, taxerr.At(taxerr.BackendError, rec.RowID.File, rec.RowID.Row,
				fmt.Sprintf("resolving tx %s", rec.TxID), err)
		}

		ownedInputs := lo.Filter(raw.Inputs, func(in TxInput, _ int) bool {
			_, owned := ownership.OwnerOf(in.Address)
			return owned
		})
		ownedOutputs := lo.Filter(raw.Outputs, func(out TxOutput, _ int) bool {
			_, owned := ownership.OwnerOf(out.Address)
			return owned
		})

		isSend := len(ownedInputs) > 0
		allOutputsOwned := len(ownedOutputs) == len(raw.Outputs) && len(raw.Outputs) > 0
		allInputsOwned := len(ownedInputs) == len(raw.Inputs) && len(raw.Inputs) > 0

		switch {
		case isSend && allOutputsOwned:
			// every output returns to the user: a pure internal move,
			// e.g. consolidating UTXOs or moving between own wallets.
			events = append(events, internalOnChainMoveEvents(rec, ownedInputs, ownedOutputs, asset)...)

		case isSend:
			// outbound: ask tx-tags whether this is a taxable spend or a
			// transfer into another account the user controls.
			tag, hasTag := tags.Lookup(rec.TxID, 0)
			if !hasTag && !allInputsOwned {
				return nil, taxerr.At(taxerr.UnclassifiedTransaction, rec.RowID.File, rec.RowID.Row,
					fmt.Sprintf("outbound tx %s has no tag and an unrecognized counterparty", rec.TxID), nil)
			}

			kind := Spend
			counterparty := ""
			var override *decimal.Decimal
			if hasTag {
				override = tag.USDValueOverride
				switch tag.Tag {
				case TagTransferTo:
					kind = InternalMove
					counterparty = tag.Counterparty
				case TagLost:
					kind = Spend // economically a disposition at zero proceeds
					if override == nil {
						zero := decimal.Zero
						override = &zero
					}
				default:
					kind = Spend
					counterparty = tag.Counterparty
				}
			}

			for _, in := range ownedInputs {
				events = append(events, Event{
					Kind:                kind,
					Timestamp:           rec.Timestamp,
					Provenance:          rec.RowID,
					SourcePriority:      PriorityOnChain,
					RefGroupID:          rec.TxID,
					AccountKind:    AccountWallet,
					Account:        rec.WalletID,
					Asset:               asset,
					Amount:              in.Amount.Neg(),
					TxID:                ids.TxID(rec.TxID),
					Outpoint:            in.Outpoint,
					CounterpartyAccount: counterparty,
					USDValueOverride:    override,
				})
			}
			if raw.Fee.Sign() > 0 {
				events = append(events, Event{
					Kind:           Fee,
					Timestamp:      rec.Timestamp,
					Provenance:     rec.RowID,
					SourcePriority: PriorityOnChain,
					RefGroupID:     rec.TxID,
					AccountKind:    AccountWallet,
					Account:        rec.WalletID,
					Asset:          asset,
					Amount:         raw.Fee.Neg(),
					TxID:           ids.TxID(rec.TxID),
				})
			}

		default:
			// inbound only: a Deposit, or Income if tagged as such.
			tag, hasTag := tags.Lookup(rec.TxID, 0)
			kind := Deposit
			var override *decimal.Decimal
			if hasTag {
				override = tag.USDValueOverride
				if tag.Tag == TagIncome || tag.Tag == TagMining || tag.Tag == TagLabor {
					kind = Income
				}
			}
			for _, out := range ownedOutputs {
				events = append(events, Event{
					Kind:             kind,
					Timestamp:        rec.Timestamp,
					Provenance:       rec.RowID,
					SourcePriority:   PriorityOnChain,
					RefGroupID:       rec.TxID,
					AccountKind:    AccountWallet,
					Account:        rec.WalletID,
					Asset:            asset,
					Amount:           out.Amount,
					TxID:             ids.TxID(rec.TxID),
					Outpoint:         ids.Outpoint{TxID: ids.TxID(rec.TxID), Vout: out.Index},
					USDValueOverride: override,
				})
			}
		}
	}

	return events, nil
}

func internalOnChainMoveEvents(rec WalletHistoryRecord, inputs []TxInput, outputs []TxOutput, asset money.Asset) []Event {
	var events []Event
	for _, in := range inputs {
		events = append(events, Event{
			Kind:           InternalMove,
			Timestamp:      rec.Timestamp,
			Provenance:     rec.RowID,
			SourcePriority: PriorityOnChain,
			RefGroupID:     rec.TxID,
			AccountKind:    AccountWallet,
			Account:        rec.WalletID,
			Asset:          asset,
			Amount:         in.Amount.Neg(),
			TxID:           ids.TxID(rec.TxID),
			Outpoint:       in.Outpoint,
		})
	}
	for _, out := range outputs {
		events = append(events, Event{
			Kind:           InternalMove,
			Timestamp:      rec.Timestamp,
			Provenance:     rec.RowID,
			SourcePriority: PriorityOnChain,
			RefGroupID:     rec.TxID,
			AccountKind:    AccountWallet,
			Account:        rec.WalletID,
			Asset:          asset,
			Amount:         out.Amount,
			TxID:           ids.TxID(rec.TxID),
			Outpoint:       ids.Outpoint{TxID: ids.TxID(rec.TxID), Vout: out.Index},
		})
	}
	return events
}
