package normalize

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/taxerr"
)

// TagKind is the fixed vocabulary of transaction-intent annotations a user
// can attach to an on-chain txid.
type TagKind string

const (
	TagIncome       TagKind = "Income"
	TagSpend        TagKind = "Spend"
	TagTransferTo   TagKind = "TransferTo"
	TagTransferFrom TagKind = "TransferFrom"
	TagMining       TagKind = "Mining"
	TagLabor        TagKind = "Labor"
	TagLending      TagKind = "Lending"
	TagLost         TagKind = "Lost"
)

// TxTag resolves the intent behind one wallet-history transaction (or one
// specific output of it, when Index is set).
type TxTag struct {
	RowID            ids.RowID
	TxID             string
	Index            *int // nil means "applies to the whole transaction"
	Tag              TagKind
	Counterparty     string // payer for Income, payee for Spend, account for Transfer{To,From}
	USDValueOverride *decimal.Decimal
}

// ReadTxTagsCSV parses the tx-tags CSV: columns txid, index, tag,
// counterparty, usd_value_override. index and usd_value_override may be
// blank.
func ReadTxTagsCSV(file string, r io.Reader) ([]TxTag, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "txid", "index", "tag", "counterparty", "usd_value_override")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "tx-tags header", err)
	}

	var tags []TxTag
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

		tag := TxTag{
			RowID:        ids.RowID{File: file, Row: rowNum},
			TxID:         record[col["txid"]],
			Tag:          TagKind(record[col["tag"]]),
			Counterparty: record[col["counterparty"]],
		}

		if idxStr := record[col["index"]]; idxStr != "" {
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing index", err)
			}
			tag.Index = &idx
		}
		if usdStr := record[col["usd_value_override"]]; usdStr != "" {
			d, err := decimal.NewFromString(usdStr)
			if err != nil {
				return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing usd_value_override", err)
			}
			tag.USDValueOverride = &d
		}

		tags = append(tags, tag)
	}
	return tags, nil
}

// TagIndex is a lookup of tx-tags keyed by txid (and, for tags scoped to
// one output, by txid+index).
type TagIndex struct {
	whole map[string]TxTag
	atIdx map[string]TxTag // key: "txid:index"
}

// NewTagIndex builds a TagIndex from a flat slice of tags.
func NewTagIndex(tags []TxTag) *TagIndex {
	idx := &TagIndex{whole: map[string]TxTag{}, atIdx: map[string]TxTag{}}
	for _, t := range tags {
		if t.Index == nil {
			idx.whole[t.TxID] = t
		} else {
			idx.atIdx[fmt.Sprintf("%s:%d", t.TxID, *t.Index)] = t
		}
	}
	return idx
}

// Lookup finds the most specific tag applicable to (txid, index): an
// index-scoped tag wins over a whole-transaction tag.
func (idx *TagIndex) Lookup(txid string, index int) (TxTag, bool) {
	if t, ok := idx.atIdx[fmt.Sprintf("%s:%d", txid, index)]; ok {
		return t, true
	}
	t, ok := idx.whole[txid]
	return t, ok
}

// BasisOverride is an explicit override of a lot's per-unit basis,
// supplied for edge cases (airdrops, reconstructed history) where the
// normalizer cannot otherwise derive one.
type BasisOverride struct {
	RowID           ids.RowID
	TxID            string
	Index           *int
	BasisPerUnitUSD decimal.Decimal
}

// ReadBasisOverridesCSV parses the basis-overrides CSV: columns txid,
// index, basis_per_unit_usd.
func ReadBasisOverridesCSV(file string, r io.Reader) ([]BasisOverride, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "reading header", err)
	}
	col, err := columnIndex(header, "txid", "index", "basis_per_unit_usd")
	if err != nil {
		return nil, taxerr.At(taxerr.ParseError, file, 1, "basis-overrides header", err)
	}

	var overrides []BasisOverride
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
		basis, err := decimal.NewFromString(record[col["basis_per_unit_usd"]])
		if err != nil {
			return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing basis_per_unit_usd", err)
		}
		o := BasisOverride{
			RowID:           ids.RowID{File: file, Row: rowNum},
			TxID:            record[col["txid"]],
			BasisPerUnitUSD: basis,
		}
		if idxStr := record[col["index"]]; idxStr != "" {
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, taxerr.At(taxerr.ParseError, file, rowNum, "parsing index", err)
			}
			o.Index = &idx
		}
		overrides = append(overrides, o)
	}
	return overrides, nil
}
