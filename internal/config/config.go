// Package config loads the program's configuration surface: a YAML file
// supplying defaults, overlaid by environment variables under the
// TAXCOUNT_ prefix, following the same two-layer precedence the teacher's
// own config package uses.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the full program configuration surface (§6).
type Config struct {
	Inputs      InputsConfig      `yaml:"inputs"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint"`
	Worksheet   WorksheetConfig   `yaml:"worksheet"`
	Election    ElectionConfig    `yaml:"election"`
	Blockchain  BlockchainConfig  `yaml:"blockchain"`
	Margin      MarginConfig      `yaml:"margin"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InputsConfig names every source file the normalizer reads. The
// structured slices (LedgerSources, WalletSources) are YAML-only: the
// environment overlay covers the scalar fields, since envconfig has no
// sane way to express a list of structs as one variable.
type InputsConfig struct {
	ExchangeRatesDB string            `yaml:"exchangeRatesDb" envconfig:"EXCHANGE_RATES_DB"`
	LedgerSources   []LedgerSource    `yaml:"ledgerSources"`
	WalletSources   []WalletSource    `yaml:"walletSources"`
	OwnedAddresses  map[string]string `yaml:"ownedAddresses"` // address -> owning account id
	TxTagsFile      string            `yaml:"txTagsFile"      envconfig:"TX_TAGS_FILE"`
	BasisOverrides  string            `yaml:"basisOverrides"  envconfig:"BASIS_OVERRIDES"`
	KrakenTolerance string            `yaml:"krakenTolerance" envconfig:"KRAKEN_TOLERANCE"`
}

// LedgerSource pairs one exchange's ledger export with its matching
// trades export; both are required to disambiguate margin and
// trade-leg rows per §4.3.
type LedgerSource struct {
	ExchangeID  string `yaml:"exchangeId"`
	LedgerFile  string `yaml:"ledgerFile"`
	TradesFile  string `yaml:"tradesFile"`
}

// WalletSource names one on-chain wallet's history export, the reader
// format it was produced by ("electrum", "ledgerlive", or "generic"),
// and the chain-native asset its UTXOs are denominated in.
type WalletSource struct {
	WalletID string `yaml:"walletId"`
	File     string `yaml:"file"`
	Format   string `yaml:"format"`
	Asset    string `yaml:"asset"`
}

// CheckpointConfig names the prior/next AccountState snapshot files.
type CheckpointConfig struct {
	InputPath  string `yaml:"inputPath"  envconfig:"CHECKPOINT_INPUT"`
	OutputPath string `yaml:"outputPath" envconfig:"CHECKPOINT_OUTPUT"`
}

// WorksheetConfig controls where Form 8949 worksheet CSVs land.
type WorksheetConfig struct {
	OutputDir string `yaml:"outputDir" envconfig:"WORKSHEET_DIR"`
	Prefix    string `yaml:"prefix"    envconfig:"WORKSHEET_PREFIX"`
}

// ElectionConfig controls the Puerto Rico Bona Fide Residency Special
// Election; an empty StartDate means the election is not in effect.
type ElectionConfig struct {
	StartDate string `yaml:"bonaFideResidencyStart" envconfig:"BONA_FIDE_RESIDENCY_START"`
}

// BlockchainConfig selects and configures the on-chain resolution backend.
type BlockchainConfig struct {
	Backend   string `yaml:"backend"   envconfig:"BLOCKCHAIN_BACKEND"`
	URL       string `yaml:"url"       envconfig:"BLOCKCHAIN_URL"`
	APIKey    string `yaml:"apiKey"    envconfig:"BLOCKCHAIN_API_KEY"`
	Network   string `yaml:"network"   envconfig:"BITCOIN_NETWORK"`
	CacheDir  string `yaml:"cacheDir"  envconfig:"BLOCKCHAIN_CACHE_DIR"`
}

// MarginConfig declares the fixed order in which margin losses draw down
// collateral assets when a position's own collateral is exhausted (§4.6).
type MarginConfig struct {
	CollateralPreference []string `yaml:"collateralPreference" envconfig:"COLLATERAL_PREFERENCE"`
}

type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

// globalConfig is the package singleton, pre-populated with sane defaults
// before Load overlays the YAML file and environment.
var globalConfig = &Config{
	Inputs: InputsConfig{
		KrakenTolerance: "0.00000001",
	},
	Checkpoint: CheckpointConfig{
		InputPath:  "",
		OutputPath: "checkpoint.cbor",
	},
	Worksheet: WorksheetConfig{
		OutputDir: ".",
		Prefix:    "form8949-",
	},
	Blockchain: BlockchainConfig{
		Backend:  "blockstream",
		Network:  "mainnet",
		CacheDir: "./.taxcount/blockchain_memo",
	},
	Margin: MarginConfig{
		CollateralPreference: []string{"USD"},
	},
	Logging: LoggingConfig{
		Level: "info",
	},
}

// Load overlays configFile (if non-empty) onto the singleton's defaults,
// then overlays the TAXCOUNT-prefixed environment, matching the order the
// teacher's own config package uses: file first, environment wins ties.
func Load(configFile string) (*Config, error) {
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := envconfig.Process("taxcount", globalConfig); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if globalConfig.Blockchain.Network != "mainnet" && globalConfig.Blockchain.Network != "testnet" {
		return nil, fmt.Errorf("unknown bitcoin network: %s", globalConfig.Blockchain.Network)
	}
	return globalConfig, nil
}

// GetConfig returns the package singleton. Load must be called first;
// callers that need config before Load (e.g. a package init) should call
// Load with an empty configFile to pick up defaults and environment only.
func GetConfig() *Config {
	return globalConfig
}
