package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/taxerr"
)

// LedgerRow is one row of the exchange ledger CSV: columns txid, refid,
// time, type, subtype, aclass, asset, amount, fee, balance. This is the
// exact column layout Kraken (and compatible exchanges) export, the same
// shape the corpus's own Kraken-ledger converter parses row-by-row.
type LedgerRow struct {
	RowID   ids.RowID
	TxID    string
	RefID   string
	Time    time.Time
	Type    string // "deposit", "withdrawal", "trade", "margin", "rollover", "settled", "transfer", "staking", ...
	Subtype string
	AClass  string
	Asset   money.Asset
	Amount  decimal.Decimal
	Fee     decimal.Decimal
	Balance decimal.Decimal
}

// ReadLedgerCSV parses an exchange ledger CSV with a header row matching
// the columns documented on LedgerRow; extra columns are ignored.
func ReadLedgerCSV(file string, r io.Reader) ([]LedgerRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "txid", "refid", "time", "type", "subtype", "aclass", "asset", "amount", "fee", "balance")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "ledger header", err)
	}

	var rows []LedgerRow
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

		ts, err := parseExchangeTime(record[col["time"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing time", err)
		}
		amount, err := decimalField(record, col, "amount")
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing amount", err)
		}
		fee, err := decimalField(record, col, "fee")
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing fee", err)
		}
		balance, err := decimalField(record, col, "balance")
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing balance", err)
		}

		rows = append(rows, LedgerRow{
			RowID:   ids.RowID{File: file, Row: rowNum},
			TxID:    record[col["txid"]],
			RefID:   record[col["refid"]],
			Time:    ts,
			Type:    record[col["type"]],
			Subtype: record[col["subtype"]],
			AClass:  record[col["aclass"]],
			Asset:   money.Asset(record[col["asset"]]),
			Amount:  amount,
			Fee:     fee,
			Balance: balance,
		})
	}
	return rows, nil
}

// GroupByRefID groups ledger rows sharing the same refid, which is how a
// single logical trade (or transfer) appears as two linked double-entry
// rows.
func GroupByRefID(rows []LedgerRow) map[string][]LedgerRow {
	return lo.GroupBy(rows, func(r LedgerRow) string { return r.RefID })
}

// TradesRow is one row of the exchange trades CSV: columns txid,
// ordertxid, pair, time, type, ordertype, price, cost, fee, vol, margin,
// misc, ledgers.
type TradesRow struct {
	RowID     ids.RowID
	TxID      string
	OrderTxID string
	Pair      string
	Time      time.Time
	Type      string // "buy" or "sell"
	OrderType string
	Price     decimal.Decimal
	Cost      decimal.Decimal
	Fee       decimal.Decimal
	Vol       decimal.Decimal
	Margin    decimal.Decimal // non-zero marks this as a margin trade
	Misc      string
	Ledgers   string // comma-joined refids into the ledger CSV
}

// ReadTradesCSV parses an exchange trades CSV with a header matching the
// columns documented on TradesRow.
func ReadTradesCSV(file string, r io.Reader) ([]TradesRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "txid", "ordertxid", "pair", "time", "type", "ordertype", "price", "cost", "fee", "vol", "margin", "misc", "ledgers")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "trades header", err)
	}

	var rows []TradesRow
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

		ts, err := parseExchangeTime(record[col["time"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing time", err)
		}

		price, _ := decimalField(record, col, "price")
		cost, _ := decimalField(record, col, "cost")
		fee, _ := decimalField(record, col, "fee")
		vol, _ := decimalField(record, col, "vol")
		margin, _ := decimalField(record, col, "margin")

		rows = append(rows, TradesRow{
			RowID:     ids.RowID{File: file, Row: rowNum},
			TxID:      record[col["txid"]],
			OrderTxID: record[col["ordertxid"]],
			Pair:      record[col["pair"]],
			Time:      ts,
			Type:      record[col["type"]],
			OrderType: record[col["ordertype"]],
			Price:     price,
			Cost:      cost,
			Fee:       fee,
			Vol:       vol,
			Margin:    margin,
			Misc:      record[col["misc"]],
			Ledgers:   record[col["ledgers"]],
		})
	}
	return rows, nil
}

// IsMargin reports whether a trades row represents a margin trade: Kraken
// (and compatible exporters) leave the margin column populated only for
// leveraged trades.
func (t TradesRow) IsMargin() bool {
	return !t.Margin.IsZero()
}

func columnIndex(header []string, want ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing required column %q", w)
		}
	}
	return idx, nil
}

func decimalField(record []string, col map[string]int, name string) (decimal.Decimal, error) {
	s := record[col[name]]
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseExchangeTime(s string) (time.Time, error) {
	// Kraken exports both a date-only and a full RFC3339-ish timestamp
	// depending on row type; try the common layouts in order.
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	var lastErr error
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
