package normalize

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/taxerr"
)

// WalletHistoryRecord is the canonical shape every wallet-history format
// reader produces, regardless of the exporting wallet software: one
// on-chain transaction's net effect on a wallet's tracked addresses.
type WalletHistoryRecord struct {
	RowID            ids.RowID
	TxID             string
	WalletID         string
	Timestamp        time.Time
	NetFlowPerAddr   map[string]decimal.Decimal // address -> signed net flow (positive received, negative sent)
}

// WalletHistoryReader reads one wallet-history file format into the
// canonical record shape. Each concrete wallet export format (Electrum,
// Ledger Live, a generic manual CSV) gets its own implementation, per the
// open question in the design notes: the exact field mapping is
// format-specific, so it's pinned down by the reader's source rather than
// by a shared heuristic. No fixture files for these formats are included.
type WalletHistoryReader interface {
	Read(file string, r io.Reader, walletID string) ([]WalletHistoryRecord, error)
}

// ElectrumReader reads Electrum's "History" CSV export: columns
// transaction_hash, label, confirmations, value, timestamp, one row per
// transaction, one address's net flow per wallet (Electrum exports are
// already wallet-scoped, so there is exactly one address column implicit
// in "value").
type ElectrumReader struct{}

func (ElectrumReader) Read(file string, r io.Reader, walletID string) ([]WalletHistoryRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "transaction_hash", "value", "timestamp")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "electrum header", err)
	}

	var out []WalletHistoryRecord
	rowNum := 1
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "reading row", err)
		}
		ts, err := time.Parse("2006-01-02 15:04", record[col["timestamp"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing timestamp", err)
		}
		value, err := decimal.NewFromString(record[col["value"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing value", err)
		}
		out = append(out, WalletHistoryRecord{
			RowID:     ids.RowID{File: file, Row: rowNum},
			TxID:      record[col["transaction_hash"]],
			WalletID:  walletID,
			Timestamp: ts.UTC(),
			NetFlowPerAddr: map[string]decimal.Decimal{
				walletID: value, // Electrum's own export is already wallet-scoped
			},
		})
	}
	return out, nil
}

// LedgerLiveReader reads Ledger Live's "Operations" CSV export: columns
// Operation Date, Operation Type, Operation Amount, Account Name, Operation
// Hash.
type LedgerLiveReader struct{}

func (LedgerLiveReader) Read(file string, r io.Reader, walletID string) ([]WalletHistoryRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "Operation Date", "Operation Type", "Operation Amount", "Operation Hash")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "ledger-live header", err)
	}

	var out []WalletHistoryRecord
	rowNum := 1
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "reading row", err)
		}
		ts, err := time.Parse(time.RFC3339, record[col["Operation Date"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing date", err)
		}
		amount, err := decimal.NewFromString(record[col["Operation Amount"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing amount", err)
		}
		if record[col["Operation Type"]] == "OUT" {
			amount = amount.Neg()
		}
		out = append(out, WalletHistoryRecord{
			RowID:          ids.RowID{File: file, Row: rowNum},
			TxID:           record[col["Operation Hash"]],
			WalletID:       walletID,
			Timestamp:      ts.UTC(),
			NetFlowPerAddr: map[string]decimal.Decimal{walletID: amount},
		})
	}
	return out, nil
}

// GenericReader reads a generic, manually-curated wallet-history CSV:
// columns txid, wallet_id, timestamp, net_flow. Used for wallets this
// system has no dedicated exporter for.
type GenericReader struct{}

func (GenericReader) Read(file string, r io.Reader, walletID string) ([]WalletHistoryRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "txid", "wallet_id", "timestamp", "net_flow")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "generic wallet header", err)
	}

	var out []WalletHistoryRecord
	rowNum := 1
	for {
		rowNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "reading row", err)
		}
		ts, err := time.Parse(time.RFC3339, record[col["timestamp"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing timestamp", err)
		}
		flow, err := decimal.NewFromString(record[col["net_flow"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing net_flow", err)
		}
		wid := record[col["wallet_id"]]
		if wid == "" {
			wid = walletID
		}
		out = append(out, WalletHistoryRecord{
			RowID:          ids.RowID{File: file, Row: rowNum},
			TxID:           record[col["txid"]],
			WalletID:       wid,
			Timestamp:      ts.UTC(),
			NetFlowPerAddr: map[string]decimal.Decimal{wid: flow},
		})
	}
	return out, nil
}
