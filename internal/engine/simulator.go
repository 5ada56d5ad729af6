package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/rateoracle"
	"src.d10.dev/taxcount/internal/taxerr"
)

// Simulator is the engine's core: it walks one globally-ordered
// NormalizedEvent stream, mutates an AccountState, and accumulates
// TaxableEvents. It is single-threaded and deterministic by construction
// (§5): the same event stream always produces the same TaxableEvent
// sequence and the same final AccountState.
type Simulator struct {
	state               *lotstore.AccountState
	oracle              *rateoracle.Oracle
	collateralPreference []money.Asset

	events []TaxableEvent
}

// New returns a Simulator bound to state, which it mutates in place.
// collateralPreference is consulted only when a margin loss must be drawn
// from one of several collateral currencies held on the same exchange
// (§4.6); pass nil if the deployment never holds mixed collateral.
func New(state *lotstore.AccountState, oracle *rateoracle.Oracle, collateralPreference []money.Asset) *Simulator {
	return &Simulator{state: state, oracle: oracle, collateralPreference: collateralPreference}
}

// Run consumes the merged stream in order and returns every TaxableEvent
// produced. It stops at the first error, per §7: a normalization or
// lot-consumption failure aborts the run with no partial checkpoint
// written by the caller.
func (s *Simulator) Run(stream []normalize.Event) ([]TaxableEvent, error) {
	i := 0
	for i < len(stream) {
		e := stream[i]

		if e.Kind == normalize.InternalMove {
			j := i + 1
			for j < len(stream) && stream[j].Kind == normalize.InternalMove && stream[j].RefGroupID == e.RefGroupID {
				j++
			}
			if err := s.handleInternalMoveGroup(stream[i:j]); err != nil {
				return nil, err
			}
			i = j
			continue
		}

		if err := s.handleEvent(e); err != nil {
			return nil, err
		}
		i++
	}
	return s.events, nil
}

func (s *Simulator) handleEvent(e normalize.Event) error {
	switch e.Kind {
	case normalize.Deposit:
		return s.handleDeposit(e)
	case normalize.Withdrawal:
		return s.handleWithdrawal(e)
	case normalize.TradeLeg:
		return s.handleTradeLeg(e)
	case normalize.Spend:
		return s.handleSpend(e)
	case normalize.Income:
		return s.handleIncome(e)
	case normalize.Fee:
		return s.handleFee(e)
	case normalize.MarginOpen:
		return s.handleMarginOpen(e)
	case normalize.MarginRollover:
		return s.handleMarginRollover(e)
	case normalize.MarginSettle:
		return s.handleMarginSettle(e)
	case normalize.MarginClose:
		return s.handleMarginClose(e)
	default:
		return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row,
			fmt.Sprintf("unrecognized normalized event kind %q", e.Kind), nil)
	}
}

// queueFor returns the lot queue an event's Account/AccountKind names.
func (s *Simulator) queueFor(e normalize.Event) *lotstore.Queue {
	if e.AccountKind == normalize.AccountWallet {
		return s.state.WalletQueue(lotstore.WalletKey{WalletID: e.Account, Asset: e.Asset})
	}
	return s.state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: e.Account, Asset: e.Asset})
}

func (s *Simulator) handleDeposit(e normalize.Event) error {
	basisPerUnit, err := s.usdRate(e.Asset, e.Timestamp, e.USDValueOverride)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	origin := lotstore.Origin{Kind: lotstore.OriginBootstrap, RowID: e.Provenance}
	if e.Outpoint.TxID != "" {
		origin = lotstore.Origin{Kind: lotstore.OriginOnChainUTXO, Outpoint: e.Outpoint}
	}
	lot, err := lotstore.NewLot(e.Asset, e.Amount, basisPerUnit, e.Timestamp, origin)
	if err != nil {
		return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row, "constructing deposit lot", err)
	}
	s.queueFor(e).Push(lot)
	return nil
}

// handleWithdrawal implements the non-taxable-transfer half of §4.5: the
// source queue is drawn down FIFO and, when the destination is a known
// account of the same kind (exchange-to-exchange), an identical lot is
// pushed there preserving basis and acquired_at. When the destination is
// unknown (the common exchange-to-external-wallet case), basis continuity
// across the boundary is the tx-tags/basis-overrides input's job, not
// this engine's — see DESIGN.md.
func (s *Simulator) handleWithdrawal(e normalize.Event) error {
	amount := e.Amount.Abs()
	atoms, err := s.queueFor(e).Consume(amount)
	if err != nil {
		return wrapConsumeErr(e, err)
	}
	if e.CounterpartyAccount == "" {
		return nil
	}
	dest := s.state.ExchangeQueue(lotstore.ExchangeKey{ExchangeID: e.CounterpartyAccount, Asset: e.Asset})
	if e.AccountKind == normalize.AccountWallet {
		dest = s.state.WalletQueue(lotstore.WalletKey{WalletID: e.CounterpartyAccount, Asset: e.Asset})
	}
	for _, a := range atoms {
		lot, err := lotstore.NewLot(a.Asset, a.AmountConsumed, a.LotBasisPerUnit, a.AcquiredAt, a.Origin)
		if err != nil {
			return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row, "re-pushing withdrawal lot", err)
		}
		dest.Push(lot)
	}
	return nil
}

func (s *Simulator) handleTradeLeg(e normalize.Event) error {
	if e.Amount.Sign() > 0 {
		return s.handleTradeLegBuy(e)
	}
	return s.handleTradeLegSell(e)
}

func (s *Simulator) handleTradeLegBuy(e normalize.Event) error {
	quoteRate, err := s.usdRate(e.CounterAsset, e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	costUSD := e.CounterAmount.Mul(quoteRate)
	if e.Fee.Sign() != 0 {
		feeRate, err := s.usdRate(e.Asset, e.Timestamp, nil)
		if err != nil {
			return wrapOracleErr(e, err)
		}
		costUSD = costUSD.Add(e.Fee.Abs().Mul(feeRate))
	}
	basisPerUnit := costUSD.Div(e.Amount)
	lot, err := lotstore.NewLot(e.Asset, e.Amount, basisPerUnit, e.Timestamp,
		lotstore.Origin{Kind: lotstore.OriginExchangeBuy, RowID: e.Provenance})
	if err != nil {
		return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row, "constructing trade-buy lot", err)
	}
	s.queueFor(e).Push(lot)
	return nil
}

func (s *Simulator) handleTradeLegSell(e normalize.Event) error {
	amount := e.Amount.Abs()
	quoteRate, err := s.usdRate(e.CounterAsset, e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	proceedsUSD := e.CounterAmount.Mul(quoteRate)

	var feeUSD decimal.Decimal
	if e.Fee.Sign() != 0 {
		feeRate, err := s.usdRate(e.Asset, e.Timestamp, nil)
		if err != nil {
			return wrapOracleErr(e, err)
		}
		feeUSD = e.Fee.Abs().Mul(feeRate)
	}

	atoms, err := s.queueFor(e).Consume(amount)
	if err != nil {
		return wrapConsumeErr(e, err)
	}
	proceedsPerUnit := proceedsUSD.Div(amount)
	return s.emitCapitalDisposition(e, amount, proceedsUSD, feeUSD, proceedsPerUnit, atoms)
}

func (s *Simulator) handleSpend(e normalize.Event) error {
	amount := e.Amount.Abs()
	rate, err := s.usdRate(e.Asset, e.Timestamp, e.USDValueOverride)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	proceedsUSD := amount.Mul(rate)

	atoms, err := s.queueFor(e).Consume(amount)
	if err != nil {
		return wrapConsumeErr(e, err)
	}
	return s.emitCapitalDisposition(e, amount, proceedsUSD, decimal.Zero, rate, atoms)
}

func (s *Simulator) handleFee(e normalize.Event) error {
	amount := e.Amount.Abs()
	atoms, err := s.queueFor(e).Consume(amount)
	if err != nil {
		return wrapConsumeErr(e, err)
	}
	// A fee is a disposition at zero proceeds: the basis consumed becomes
	// a capital loss in full.
	return s.emitCapitalDisposition(e, amount, decimal.Zero, decimal.Zero, decimal.Zero, atoms)
}

func (s *Simulator) handleIncome(e normalize.Event) error {
	rate, err := s.usdRate(e.Asset, e.Timestamp, e.USDValueOverride)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	lot, err := lotstore.NewLot(e.Asset, e.Amount, rate, e.Timestamp,
		lotstore.Origin{Kind: lotstore.OriginIncome, RowID: e.Provenance})
	if err != nil {
		return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row, "constructing income lot", err)
	}
	s.queueFor(e).Push(lot)

	fmv := e.Amount.Mul(rate)
	s.events = append(s.events, TaxableEvent{
		DispositionTimestamp: e.Timestamp,
		AssetSold:            e.Asset,
		TotalAmount:          e.Amount,
		ProceedsUSD:          fmv,
		Category:             OrdinaryIncome,
		SourceFile:           e.Provenance.File,
		SourceRow:            e.Provenance.Row,
	})
	return nil
}

// emitCapitalDisposition builds a Capital TaxableEvent from consumed
// atoms, applying the Bona Fide Residency split (§4.5) to each atom whose
// lot predates the election.
func (s *Simulator) emitCapitalDisposition(
	e normalize.Event,
	amount, proceedsUSD, feeUSD, proceedsPerUnit decimal.Decimal,
	consumed []lotstore.ConsumedAtom,
) error {
	atoms := make([]EventTradeAtom, 0, len(consumed))
	for _, a := range consumed {
		split, err := s.splitForResidency(EventTradeAtom{
			LotID:              a.LotID,
			Asset:              a.Asset,
			AmountConsumed:     a.AmountConsumed,
			LotBasisPerUnit:    a.LotBasisPerUnit,
			ProceedsPerUnitUSD: proceedsPerUnit,
			AcquiredAt:         a.AcquiredAt,
			DisposedAt:         e.Timestamp,
			ShortOrLongTerm:    classifyTerm(a.AcquiredAt, e.Timestamp),
			Origin:             a.Origin,
		})
		if err != nil {
			return err
		}
		atoms = append(atoms, split...)
	}
	s.events = append(s.events, TaxableEvent{
		DispositionTimestamp: e.Timestamp,
		AssetSold:            e.Asset,
		TotalAmount:          amount,
		ProceedsUSD:          proceedsUSD,
		FeeUSD:               feeUSD,
		TradeDetails:         atoms,
		Category:             Capital,
		SourceFile:           e.Provenance.File,
		SourceRow:            e.Provenance.Row,
	})
	return nil
}

// splitForResidency applies the Bona Fide Residency Special Election's
// output-labeling split (§4.5): an atom whose lot was acquired before the
// election start, and whose disposition falls after it, is split into a
// US-sourced portion (the lot's declared basis, unchanged) and a
// territory-sourced portion valued at the oracle's rate on the
// acquisition date. Lot accounting itself is untouched; only the
// reported atom is split, and the two halves' amounts sum back to the
// original AmountConsumed.
func (s *Simulator) splitForResidency(atom EventTradeAtom) ([]EventTradeAtom, error) {
	start := s.state.BonaFideResidencyStart
	if start == nil || !atom.AcquiredAt.Before(*start) || !atom.DisposedAt.After(*start) {
		atom.Sourcing = USSourced
		if start == nil {
			atom.Sourcing = Unsplit
		}
		return []EventTradeAtom{atom}, nil
	}

	territoryBasis, err := s.usdRate(atom.Asset, atom.AcquiredAt, nil)
	if err != nil {
		return nil, taxerr.At(taxerr.NoRateAvailable, "", 0,
			fmt.Sprintf("resolving territory-sourced basis for %s at %s", atom.Asset, atom.AcquiredAt.UTC().Format(time.RFC3339)), err)
	}

	half := atom.AmountConsumed.Div(decimal.NewFromInt(2))
	us := atom
	us.AmountConsumed = half
	us.Sourcing = USSourced

	territory := atom
	territory.AmountConsumed = atom.AmountConsumed.Sub(half)
	territory.Sourcing = TerritorySourced
	territory.LotBasisPerUnit = territoryBasis

	return []EventTradeAtom{us, territory}, nil
}

func wrapOracleErr(e normalize.Event, err error) error {
	return taxerr.At(taxerr.NoRateAvailable, e.Provenance.File, e.Provenance.Row,
		fmt.Sprintf("resolving USD rate for %s at %s", e.Asset, e.Timestamp.UTC().Format(time.RFC3339)), err)
}

func wrapConsumeErr(e normalize.Event, err error) error {
	return taxerr.At(taxerr.InsufficientBalance, e.Provenance.File, e.Provenance.Row,
		fmt.Sprintf("consuming %s %s from %s", e.Amount.Abs(), e.Asset, e.Account), err)
}

// handleInternalMoveGroup processes one contiguous run of InternalMove
// events sharing a ref_group_id as a single non-taxable transfer: every
// outflow leg is consumed (by outpoint when UTXO-keyed, by FIFO
// otherwise) into a pooled weighted-average basis, and every inflow leg
// receives a new lot carrying that pooled basis, preserving the earliest
// acquired_at among the consumed lots. For the common one-in-one-out case
// this reduces exactly to "basis preserved, acquired_at preserved."
func (s *Simulator) handleInternalMoveGroup(group []normalize.Event) error {
	var totalConsumed, totalBasisUSD decimal.Decimal
	var earliestAcquired time.Time
	haveEarliest := false

	for _, e := range group {
		if e.Amount.Sign() >= 0 {
			continue
		}
		amount := e.Amount.Abs()
		var atoms []lotstore.ConsumedAtom
		var err error
		if e.Outpoint.TxID != "" {
			a, cErr := s.queueFor(e).ConsumeUTXO(e.Outpoint)
			err = cErr
			if cErr == nil {
				atoms = []lotstore.ConsumedAtom{a}
			}
		} else {
			atoms, err = s.queueFor(e).Consume(amount)
		}
		if err != nil {
			return wrapConsumeErr(e, err)
		}
		for _, a := range atoms {
			totalConsumed = totalConsumed.Add(a.AmountConsumed)
			totalBasisUSD = totalBasisUSD.Add(a.AmountConsumed.Mul(a.LotBasisPerUnit))
			if !haveEarliest || a.AcquiredAt.Before(earliestAcquired) {
				earliestAcquired = a.AcquiredAt
				haveEarliest = true
			}
		}
	}

	if totalConsumed.IsZero() {
		return nil
	}
	basisPerUnit := totalBasisUSD.Div(totalConsumed)

	for _, e := range group {
		if e.Amount.Sign() < 0 {
			continue
		}
		origin := lotstore.Origin{Kind: lotstore.OriginInternalMove, RowID: e.Provenance}
		if e.Outpoint.TxID != "" {
			origin = lotstore.Origin{Kind: lotstore.OriginOnChainUTXO, Outpoint: e.Outpoint}
		}
		lot, err := lotstore.NewLot(e.Asset, e.Amount, basisPerUnit, earliestAcquired, origin)
		if err != nil {
			return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row, "constructing internal-move lot", err)
		}
		s.queueFor(e).Push(lot)
	}
	return nil
}

func pairBase(pair string) money.Asset {
	parts := strings.SplitN(pair, "/", 2)
	return money.Asset(parts[0])
}

func pairQuote(pair string) money.Asset {
	parts := strings.SplitN(pair, "/", 2)
	if len(parts) < 2 {
		return money.Asset("USD")
	}
	return money.Asset(parts[1])
}
