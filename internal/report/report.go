// Package report renders TaxableEvents into Form 8949 worksheet CSVs and an
// informational summary CSV for categories Form 8949 doesn't cover.
//
// The column layout and short-term/long-term file split mirror the
// cost-basis-tracking example's PrintCapitalGainsTSV, adapted from
// tab-separated to comma-separated per §4.7, and from one combined sheet to
// two (Form 8949 requires short-term and long-term dispositions reported on
// separate Parts).
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"src.d10.dev/taxcount/internal/engine"
)

const (
	shortTermSuffix  = "short-term.csv"
	longTermSuffix   = "long-term.csv"
	summarySuffix    = "summary.csv"
	dateLayout       = "2006-01-02"
)

var form8949Header = []string{
	"description", "date_acquired", "date_sold", "proceeds", "cost_basis",
	"gain_loss", "short_or_long_term", "sourcing",
	"source_file", "source_row", "lot_id",
}

var summaryHeader = []string{
	"category", "date", "asset", "amount", "proceeds_usd", "fee_usd",
	"source_file", "source_row",
}

// WriteWorksheets renders events into {prefix}short-term.csv and
// {prefix}long-term.csv under dir, one row per EventTradeAtom, plus
// {prefix}summary.csv carrying OrdinaryIncome and MarginInterest events
// (informational; not part of Form 8949). Files are only created if they
// would have at least one row.
func WriteWorksheets(dir, prefix string, events []engine.TaxableEvent) error {
	var shortRows, longRows, summaryRows [][]string

	for _, ev := range events {
		switch ev.Category {
		case engine.Capital, engine.Margin:
			for _, atom := range ev.TradeDetails {
				row := form8949Row(ev, atom)
				if atom.ShortOrLongTerm == engine.LongTerm {
					longRows = append(longRows, row)
				} else {
					shortRows = append(shortRows, row)
				}
			}
		case engine.OrdinaryIncome, engine.MarginInterest:
			summaryRows = append(summaryRows, summaryRow(ev))
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating worksheet directory: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, prefix+shortTermSuffix), form8949Header, shortRows); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, prefix+longTermSuffix), form8949Header, longRows); err != nil {
		return err
	}
	if err := writeCSV(filepath.Join(dir, prefix+summarySuffix), summaryHeader, summaryRows); err != nil {
		return err
	}
	return nil
}

func form8949Row(ev engine.TaxableEvent, atom engine.EventTradeAtom) []string {
	proceeds := atom.ProceedsPerUnitUSD.Mul(atom.AmountConsumed)
	basis := atom.LotBasisPerUnit.Mul(atom.AmountConsumed)
	gainLoss := proceeds.Sub(basis)
	description := fmt.Sprintf("%s %s", atom.AmountConsumed.StringFixed(8), atom.Asset)

	return []string{
		description,
		atom.AcquiredAt.UTC().Format(dateLayout),
		atom.DisposedAt.UTC().Format(dateLayout),
		proceeds.StringFixed(2),
		basis.StringFixed(2),
		gainLoss.StringFixed(2),
		string(atom.ShortOrLongTerm),
		string(atom.Sourcing),
		ev.SourceFile,
		fmt.Sprintf("%d", ev.SourceRow),
		string(atom.LotID),
	}
}

func summaryRow(ev engine.TaxableEvent) []string {
	return []string{
		string(ev.Category),
		ev.DispositionTimestamp.UTC().Format(dateLayout),
		string(ev.AssetSold),
		ev.TotalAmount.StringFixed(8),
		ev.ProceedsUSD.StringFixed(2),
		ev.FeeUSD.StringFixed(2),
		ev.SourceFile,
		fmt.Sprintf("%d", ev.SourceRow),
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("writing header to %s: %w", path, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing row to %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}
