package main

import (
	"fmt"
	"os"
	"time"

	"src.d10.dev/taxcount/internal/config"
	"src.d10.dev/taxcount/internal/engine"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/report"
)

func readLedgerSource(src config.LedgerSource) ([]normalize.LedgerRow, []normalize.TradesRow, error) {
	ledgerFile, err := os.Open(src.LedgerFile)
	if err != nil {
		return nil, nil, fmt.Errorf("opening ledger file %s: %w", src.LedgerFile, err)
	}
	defer ledgerFile.Close()
	ledgerRows, err := normalize.ReadLedgerCSV(src.LedgerFile, ledgerFile)
	if err != nil {
		return nil, nil, err
	}

	var tradesRows []normalize.TradesRow
	if src.TradesFile != "" {
		tradesFile, err := os.Open(src.TradesFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening trades file %s: %w", src.TradesFile, err)
		}
		defer tradesFile.Close()
		tradesRows, err = normalize.ReadTradesCSV(src.TradesFile, tradesFile)
		if err != nil {
			return nil, nil, err
		}
	}

	return ledgerRows, tradesRows, nil
}

func walletReaderFor(format string) (normalize.WalletHistoryReader, error) {
	switch format {
	case "electrum":
		return normalize.ElectrumReader{}, nil
	case "ledgerlive":
		return normalize.LedgerLiveReader{}, nil
	case "generic", "":
		return normalize.GenericReader{}, nil
	default:
		return nil, fmt.Errorf("unknown wallet history format %q", format)
	}
}

func readWalletSource(src config.WalletSource) ([]normalize.WalletHistoryRecord, error) {
	reader, err := walletReaderFor(src.Format)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(src.File)
	if err != nil {
		return nil, fmt.Errorf("opening wallet history file %s: %w", src.File, err)
	}
	defer f.Close()
	return reader.Read(src.File, f, src.WalletID)
}

func writeWorksheets(cfg *config.Config, events []engine.TaxableEvent) error {
	if err := report.WriteWorksheets(cfg.Worksheet.OutputDir, cfg.Worksheet.Prefix, events); err != nil {
		return fmt.Errorf("writing worksheets: %w", err)
	}
	return nil
}

func parseElectionDate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}
