// Operation: run
//
// The run operation is taxcount's only real operation: it reads every
// configured input, merges them into one ordered event stream, replays
// the stream through the simulator, and writes Form 8949 worksheets plus
// an updated checkpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"src.d10.dev/command"
	"src.d10.dev/taxcount/internal/blockchain"
	"src.d10.dev/taxcount/internal/checkpoint"
	"src.d10.dev/taxcount/internal/config"
	"src.d10.dev/taxcount/internal/engine"
	"src.d10.dev/taxcount/internal/logging"
	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/merge"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/rateoracle"
)

func init() {
	command.RegisterOperation(
		runMain,
		"run",
		"run",
		"Normalize configured inputs, run the simulator, and write Form 8949 worksheets.",
	)
}

func runMain() error {
	cfg, err := config.Load(configFlagValue())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Configure()
	log := logging.Component("cmd.run")

	ctx := context.Background()

	events, err := normalizeAllSources(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("normalized event sources", "events", len(events))

	stream := merge.Merge(events...)

	state, err := loadOrBootstrapState(cfg)
	if err != nil {
		return err
	}
	if err := applyElectionStart(cfg, state); err != nil {
		return err
	}

	oracle, err := rateoracle.Load(cfg.Inputs.ExchangeRatesDB)
	if err != nil {
		return fmt.Errorf("loading rate oracle: %w", err)
	}

	collateralPreference := make([]money.Asset, len(cfg.Margin.CollateralPreference))
	for i, a := range cfg.Margin.CollateralPreference {
		collateralPreference[i] = money.Asset(a)
	}

	sim := engine.New(state, oracle, collateralPreference)
	taxableEvents, err := sim.Run(stream)
	if err != nil {
		return fmt.Errorf("running simulator: %w", err)
	}
	log.Info("simulator produced taxable events", "count", len(taxableEvents))

	// report package is wired via WriteWorksheets, resolved from a
	// separate file to keep this operation's control flow readable.
	if err := writeWorksheets(cfg, taxableEvents); err != nil {
		return err
	}

	if err := checkpoint.Save(cfg.Checkpoint.OutputPath, state); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	log.Info("wrote checkpoint", "path", cfg.Checkpoint.OutputPath)

	return nil
}

// configFlagValue reads the "-config" flag OptionConfig registered (a
// directory, per its own usage string) and resolves it to the YAML file
// config.Load expects inside that directory.
func configFlagValue() string {
	f := flag.Lookup("config")
	if f == nil || f.Value.String() == "" {
		return ""
	}
	path := filepath.Join(f.Value.String(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func loadOrBootstrapState(cfg *config.Config) (*lotstore.AccountState, error) {
	if cfg.Checkpoint.InputPath == "" {
		return lotstore.New(), nil
	}
	if _, err := os.Stat(cfg.Checkpoint.InputPath); os.IsNotExist(err) {
		return lotstore.New(), nil
	}
	return checkpoint.Load(cfg.Checkpoint.InputPath)
}

func applyElectionStart(cfg *config.Config, state *lotstore.AccountState) error {
	if cfg.Election.StartDate == "" {
		return nil
	}
	start, err := parseElectionDate(cfg.Election.StartDate)
	if err != nil {
		return fmt.Errorf("parsing bonaFideResidencyStart: %w", err)
	}
	state.BonaFideResidencyStart = &start
	return nil
}

func normalizeAllSources(ctx context.Context, cfg *config.Config) ([][]normalize.Event, error) {
	var sources [][]normalize.Event

	for _, src := range cfg.Inputs.LedgerSources {
		ledgerRows, tradesRows, err := readLedgerSource(src)
		if err != nil {
			return nil, err
		}
		events, err := normalize.NormalizeExchangeLedger(src.ExchangeID, ledgerRows, tradesRows)
		if err != nil {
			return nil, fmt.Errorf("normalizing exchange %s: %w", src.ExchangeID, err)
		}
		sources = append(sources, events)
	}

	if len(cfg.Inputs.WalletSources) > 0 {
		client, err := buildBlockchainClient(cfg)
		if err != nil {
			return nil, err
		}
		ownership := normalize.StaticOwnership(cfg.Inputs.OwnedAddresses)
		tags, err := loadTagIndex(cfg.Inputs.TxTagsFile)
		if err != nil {
			return nil, err
		}

		for _, src := range cfg.Inputs.WalletSources {
			records, err := readWalletSource(src)
			if err != nil {
				return nil, err
			}
			events, err := normalize.NormalizeWalletHistory(ctx, money.Asset(src.Asset), records, client, ownership, tags)
			if err != nil {
				return nil, fmt.Errorf("normalizing wallet %s: %w", src.WalletID, err)
			}
			sources = append(sources, events)
		}
	}

	return sources, nil
}

func buildBlockchainClient(cfg *config.Config) (normalize.BlockchainClient, error) {
	cache, err := blockchain.OpenCache(cfg.Blockchain.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("opening blockchain cache: %w", err)
	}
	esplora := blockchain.NewEsploraClient(cfg.Blockchain.URL, cfg.Blockchain.APIKey)
	return blockchain.NewResolver(esplora, cache), nil
}

func loadTagIndex(file string) (*normalize.TagIndex, error) {
	if file == "" {
		return normalize.NewTagIndex(nil), nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("opening tx-tags file: %w", err)
	}
	defer f.Close()
	tags, err := normalize.ReadTxTagsCSV(file, f)
	if err != nil {
		return nil, err
	}
	return normalize.NewTagIndex(tags), nil
}
