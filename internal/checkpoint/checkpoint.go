// Package checkpoint persists and restores a lotstore.AccountState between
// runs, so a later run can resume exactly where a prior one left off
// instead of re-deriving basis from the beginning of history every time.
//
// Encoding is CBOR (github.com/fxamacker/cbor/v2), and writes are atomic:
// encode to a temp file in the destination directory, then rename over the
// final path, the same temp-file-plus-rename sequence the teacher's own
// state-persistence helper uses (see saveState's sibling in the cost-basis
// tool's corpus), just swapped from JSON to CBOR.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/taxerr"
)

// document is the on-disk shape of a checkpoint: the engine version comes
// first so Load can check compatibility before attempting to decode
// anything else, per §4.8.
type document struct {
	EngineVersion int
	State         wireState
}

type wireState struct {
	ExchangeBalances []wireBalance
	OnChainBalances  []wireBalance
	OpenMargin       []wireMarginPosition

	HasBonaFideResidencyStart bool
	BonaFideResidencyStart    time.Time
}

type wireBalance struct {
	ExchangeID string // set for an exchange balance, empty for a wallet balance
	WalletID   string // set for a wallet balance, empty for an exchange balance
	Asset      money.Asset
	Lots       []wireLot
}

type wireLot struct {
	ID              ids.LotID
	Asset           money.Asset
	Remaining       string
	BasisPerUnitUSD string
	AcquiredAt      time.Time
	SplitGen        int

	OriginKind     lotstore.OriginKind
	OriginFile     string
	OriginRow      int
	OriginTxID     ids.TxID
	OriginVout     uint32
}

type wireMarginPosition struct {
	ID         ids.MarginPositionID
	ExchangeID string
	OpenedAt   time.Time
	Side       lotstore.MarginSide
	Pair       string
	BaseAsset  money.Asset

	OpenedVolume      string
	OpenedProceedsUSD string

	CollateralAsset money.Asset
	RolloverFeesUSD string
	Status          lotstore.MarginStatus
}

// Save writes state to path atomically: encode to "path.tmp" in the same
// directory, fsync it, then rename over path so a reader never observes a
// partially-written file.
func Save(path string, state *lotstore.AccountState) error {
	doc := document{
		EngineVersion: lotstore.EngineVersion,
		State:         toWire(state),
	}
	encoded, err := cbor.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming checkpoint into place: %w", err)
	}
	return nil
}

// Load reads and decodes the checkpoint at path. The engine-major-version
// check happens before any other field is touched, so a version mismatch
// never risks decoding data in a stale shape.
func Load(path string) (*lotstore.AccountState, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	var header struct{ EngineVersion int }
	if err := cbor.Unmarshal(raw, &header); err != nil {
		return nil, taxerr.New(taxerr.ParseError, "decoding checkpoint header", err)
	}
	if header.EngineVersion != lotstore.EngineVersion {
		return nil, taxerr.New(taxerr.CheckpointVersionMismatch,
			fmt.Sprintf("checkpoint was written by engine version %d, this binary is version %d",
				header.EngineVersion, lotstore.EngineVersion), nil)
	}

	var doc document
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return nil, taxerr.New(taxerr.ParseError, "decoding checkpoint", err)
	}
	return fromWire(doc.State)
}

func toWire(state *lotstore.AccountState) wireState {
	w := wireState{}
	for key, q := range state.ExchangeBalances {
		w.ExchangeBalances = append(w.ExchangeBalances, wireBalance{
			ExchangeID: key.ExchangeID,
			Asset:      key.Asset,
			Lots:       toWireLots(q.Snapshot()),
		})
	}
	for key, q := range state.OnChainBalances {
		w.OnChainBalances = append(w.OnChainBalances, wireBalance{
			WalletID: key.WalletID,
			Asset:    key.Asset,
			Lots:     toWireLots(q.Snapshot()),
		})
	}
	for _, pos := range state.OpenMargin {
		w.OpenMargin = append(w.OpenMargin, wireMarginPosition{
			ID: pos.ID, ExchangeID: pos.ExchangeID, OpenedAt: pos.OpenedAt,
			Side: pos.Side, Pair: pos.Pair, BaseAsset: pos.BaseAsset,
			OpenedVolume:      pos.OpenedVolume.String(),
			OpenedProceedsUSD: pos.OpenedProceedsUSD.String(),
			CollateralAsset:   pos.CollateralAsset,
			RolloverFeesUSD:   pos.RolloverFeesUSD.String(),
			Status:            pos.Status,
		})
	}
	// Map iteration order is random; sort so the same state always encodes
	// to the same bytes.
	sort.Slice(w.ExchangeBalances, func(i, j int) bool {
		a, b := w.ExchangeBalances[i], w.ExchangeBalances[j]
		return a.ExchangeID < b.ExchangeID || (a.ExchangeID == b.ExchangeID && a.Asset < b.Asset)
	})
	sort.Slice(w.OnChainBalances, func(i, j int) bool {
		a, b := w.OnChainBalances[i], w.OnChainBalances[j]
		return a.WalletID < b.WalletID || (a.WalletID == b.WalletID && a.Asset < b.Asset)
	})
	sort.Slice(w.OpenMargin, func(i, j int) bool { return w.OpenMargin[i].ID < w.OpenMargin[j].ID })
	if state.BonaFideResidencyStart != nil {
		w.HasBonaFideResidencyStart = true
		w.BonaFideResidencyStart = *state.BonaFideResidencyStart
	}
	return w
}

func toWireLots(lots []lotstore.Lot) []wireLot {
	out := make([]wireLot, len(lots))
	for i, l := range lots {
		out[i] = wireLot{
			ID: l.ID, Asset: l.Asset, Remaining: l.Remaining.String(),
			BasisPerUnitUSD: l.BasisPerUnitUSD.String(), AcquiredAt: l.AcquiredAt,
			SplitGen:   l.SplitGen,
			OriginKind: l.Origin.Kind,
			OriginFile: l.Origin.RowID.File, OriginRow: l.Origin.RowID.Row,
			OriginTxID: l.Origin.Outpoint.TxID, OriginVout: l.Origin.Outpoint.Vout,
		}
	}
	return out
}

func fromWire(w wireState) (*lotstore.AccountState, error) {
	state := lotstore.New()
	for _, wb := range w.ExchangeBalances {
		lots, err := fromWireLots(wb.Lots)
		if err != nil {
			return nil, err
		}
		q := state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: wb.ExchangeID, Asset: wb.Asset})
		q.Restore(lots)
	}
	for _, wb := range w.OnChainBalances {
		lots, err := fromWireLots(wb.Lots)
		if err != nil {
			return nil, err
		}
		q := state.WalletQueue(lotstore.WalletKey{WalletID: wb.WalletID, Asset: wb.Asset})
		q.Restore(lots)
	}
	for _, wp := range w.OpenMargin {
		openedVolume, err := decimal.NewFromString(wp.OpenedVolume)
		if err != nil {
			return nil, fmt.Errorf("parsing margin position %s opened volume: %w", wp.ID, err)
		}
		openedProceeds, err := decimal.NewFromString(wp.OpenedProceedsUSD)
		if err != nil {
			return nil, fmt.Errorf("parsing margin position %s opened proceeds: %w", wp.ID, err)
		}
		rolloverFees, err := decimal.NewFromString(wp.RolloverFeesUSD)
		if err != nil {
			return nil, fmt.Errorf("parsing margin position %s rollover fees: %w", wp.ID, err)
		}
		state.OpenMargin[wp.ID] = &lotstore.MarginPosition{
			ID: wp.ID, ExchangeID: wp.ExchangeID, OpenedAt: wp.OpenedAt,
			Side: wp.Side, Pair: wp.Pair, BaseAsset: wp.BaseAsset,
			OpenedVolume: openedVolume, OpenedProceedsUSD: openedProceeds,
			CollateralAsset: wp.CollateralAsset, RolloverFeesUSD: rolloverFees,
			Status: wp.Status,
		}
	}
	if w.HasBonaFideResidencyStart {
		start := w.BonaFideResidencyStart
		state.BonaFideResidencyStart = &start
	}
	return state, nil
}

func fromWireLots(wls []wireLot) ([]lotstore.Lot, error) {
	out := make([]lotstore.Lot, len(wls))
	for i, wl := range wls {
		remaining, err := decimal.NewFromString(wl.Remaining)
		if err != nil {
			return nil, fmt.Errorf("parsing lot %s remaining: %w", wl.ID, err)
		}
		basis, err := decimal.NewFromString(wl.BasisPerUnitUSD)
		if err != nil {
			return nil, fmt.Errorf("parsing lot %s basis: %w", wl.ID, err)
		}
		out[i] = lotstore.Lot{
			ID: wl.ID, Asset: wl.Asset, Remaining: remaining, BasisPerUnitUSD: basis,
			AcquiredAt: wl.AcquiredAt, SplitGen: wl.SplitGen,
			Origin: lotstore.Origin{
				Kind:     wl.OriginKind,
				RowID:    ids.RowID{File: wl.OriginFile, Row: wl.OriginRow},
				Outpoint: ids.Outpoint{TxID: wl.OriginTxID, Vout: wl.OriginVout},
			},
		}
	}
	return out, nil
}
