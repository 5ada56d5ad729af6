package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/lotstore"
	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/taxerr"
)

// handleMarginOpen records a new MarginPosition. Opening a margin trade
// has no tax consequence of its own (§4.6); the position's opening cost
// is fixed in USD now so Close/Settle never need to revisit the opening
// rate.
func (s *Simulator) handleMarginOpen(e normalize.Event) error {
	quoteAsset := pairQuote(e.MarginPair)
	quoteRate, err := s.usdRate(quoteAsset, e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}

	collateral := strings.TrimPrefix(e.CounterpartyAccount, "collateral:")
	pos := &lotstore.MarginPosition{
		ID:                ids.NewMarginPositionID(e.Provenance.String()),
		ExchangeID:        e.Account,
		OpenedAt:          e.Timestamp,
		Side:              lotstore.MarginSide(e.MarginSide),
		Pair:              e.MarginPair,
		BaseAsset:         pairBase(e.MarginPair),
		OpenedVolume:      e.Amount,
		OpenedProceedsUSD: e.CounterAmount.Mul(quoteRate),
		CollateralAsset:   money.Asset(collateral),
		Status:            lotstore.MarginOpenStatus,
	}
	s.state.OpenMargin[pos.ID] = pos
	return nil
}

// handleMarginRollover accrues interest against the oldest open position
// on the event's pair and immediately emits the MarginInterest TaxableEvent
// for the accrued amount, so the interest expense is attributed to the
// calendar year the rollover actually happened in rather than deferred to
// the position's eventual Settle/Close.
func (s *Simulator) handleMarginRollover(e normalize.Event) error {
	pos := s.oldestOpenPosition(e.MarginPair)
	if pos == nil {
		return taxerr.At(taxerr.ParseError, e.Provenance.File, e.Provenance.Row,
			fmt.Sprintf("margin rollover for %s with no open position", e.MarginPair), nil)
	}
	feeAmount := e.Amount.Abs()
	feeRate, err := s.usdRate(pairQuote(e.MarginPair), e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	feeUSD := feeAmount.Mul(feeRate)
	pos.RolloverFeesUSD = pos.RolloverFeesUSD.Add(feeUSD)

	s.events = append(s.events, TaxableEvent{
		DispositionTimestamp: e.Timestamp,
		AssetSold:            pairQuote(e.MarginPair),
		TotalAmount:          feeAmount,
		ProceedsUSD:          decimal.Zero,
		FeeUSD:               feeUSD,
		Category:             MarginInterest,
		SourceFile:           e.Provenance.File,
		SourceRow:            e.Provenance.Row,
	})
	return nil
}

// handleMarginSettle repays the borrowed asset directly from balances: the
// repayment itself is an ordinary disposition (consumed FIFO from the
// repaying account, priced at the oracle rate), exactly like Spend. No
// additional P/L is realized on the margin position itself; rollover
// interest was already recognized as it accrued.
func (s *Simulator) handleMarginSettle(e normalize.Event) error {
	amount := e.Amount.Abs()
	rate, err := s.usdRate(e.Asset, e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}
	proceedsUSD := amount.Mul(rate)

	atoms, err := s.queueFor(e).Consume(amount)
	if err != nil {
		return wrapConsumeErr(e, err)
	}
	if err := s.emitCapitalDisposition(e, amount, proceedsUSD, decimal.Zero, rate, atoms); err != nil {
		return err
	}
	_, err = s.drawMarginVolumeFIFO(e.MarginPair, amount, lotstore.MarginSettledStatus)
	if err != nil {
		return taxerr.At(taxerr.InsufficientBalance, e.Provenance.File, e.Provenance.Row,
			fmt.Sprintf("margin settle for %s: %s", e.MarginPair, err), err)
	}
	return nil
}

// handleMarginClose realizes P/L on an opposing trade: the difference
// between each drawn-from position's fixed USD opening cost and the
// current USD market value of the volume closed against it, signed by
// side (§4.6). A close can span more than one open position on the same
// pair (the oldest is drawn down first, per Kraken's documented order);
// each position contributes its own EventTradeAtom, since positions opened
// at different times can classify short-term vs. long-term differently.
func (s *Simulator) handleMarginClose(e normalize.Event) error {
	amount := e.Amount.Abs()
	rate, err := s.usdRate(pairBase(e.MarginPair), e.Timestamp, nil)
	if err != nil {
		return wrapOracleErr(e, err)
	}

	draws, err := s.drawMarginVolumeFIFO(e.MarginPair, amount, lotstore.MarginClosedStatus)
	if err != nil {
		return taxerr.At(taxerr.InsufficientBalance, e.Provenance.File, e.Provenance.Row,
			fmt.Sprintf("margin close for %s: %s", e.MarginPair, err), err)
	}

	atoms := make([]EventTradeAtom, 0, len(draws))
	var totalProceedsUSD decimal.Decimal
	for _, d := range draws {
		closingValueUSD := d.volume.Mul(rate)

		var basisPerUnit, proceedsPerUnit decimal.Decimal
		if d.pos.Side == lotstore.MarginLong {
			basisPerUnit = d.openedCostUSD.Div(d.volume)
			proceedsPerUnit = closingValueUSD.Div(d.volume)
		} else {
			basisPerUnit = closingValueUSD.Div(d.volume)
			proceedsPerUnit = d.openedCostUSD.Div(d.volume)
		}

		atoms = append(atoms, EventTradeAtom{
			Asset:              pairBase(e.MarginPair),
			AmountConsumed:     d.volume,
			LotBasisPerUnit:    basisPerUnit,
			ProceedsPerUnitUSD: proceedsPerUnit,
			AcquiredAt:         d.pos.OpenedAt,
			DisposedAt:         e.Timestamp,
			ShortOrLongTerm:    classifyTerm(d.pos.OpenedAt, e.Timestamp),
			Origin:             lotstore.Origin{Kind: lotstore.OriginInternalMove, RowID: e.Provenance},
		})
		totalProceedsUSD = totalProceedsUSD.Add(proceedsPerUnit.Mul(d.volume))
		if loss := basisPerUnit.Sub(proceedsPerUnit).Mul(d.volume); loss.Sign() > 0 {
			if err := s.settleMarginLossFromCollateral(e, d.pos, loss); err != nil {
				return err
			}
		}
	}

	s.events = append(s.events, TaxableEvent{
		DispositionTimestamp: e.Timestamp,
		AssetSold:            pairBase(e.MarginPair),
		TotalAmount:          amount,
		ProceedsUSD:          totalProceedsUSD,
		TradeDetails:         atoms,
		Category:             Margin,
		SourceFile:           e.Provenance.File,
		SourceRow:            e.Provenance.Row,
	})
	return nil
}

// settleMarginLossFromCollateral draws lossUSD out of the account's
// collateral holdings on the position's exchange, trying the position's
// own collateral asset first and then the configured preference order
// (§4.6), stopping at the first asset with sufficient balance. The draw
// is itself an ordinary Capital disposition at zero proceeds, the same
// shape as a Fee: it is a forced payment, not a market sale.
func (s *Simulator) settleMarginLossFromCollateral(e normalize.Event, pos *lotstore.MarginPosition, lossUSD decimal.Decimal) error {
	candidates := append([]money.Asset{pos.CollateralAsset}, s.collateralPreference...)
	for _, asset := range candidates {
		if asset == "" {
			continue
		}
		key := lotstore.ExchangeKey{ExchangeID: pos.ExchangeID, Asset: asset}
		q := s.state.ExchangeQueue(key)
		rate, err := s.usdRate(asset, e.Timestamp, nil)
		if err != nil {
			continue
		}
		amount := lossUSD.Div(rate)
		if q.Balance().LessThan(amount) {
			continue
		}
		atoms, err := q.Consume(amount)
		if err != nil {
			continue
		}
		synthetic := normalize.Event{Kind: normalize.Fee, Timestamp: e.Timestamp, Provenance: e.Provenance, AccountKind: normalize.AccountExchange, Account: pos.ExchangeID, Asset: asset}
		return s.emitCapitalDisposition(synthetic, amount, decimal.Zero, decimal.Zero, decimal.Zero, atoms)
	}
	return taxerr.New(taxerr.InsufficientBalance,
		fmt.Sprintf("no collateral asset available to cover margin loss of %s USD", lossUSD), nil)
}

// oldestOpenPosition returns the earliest-opened position on pair still
// open or partially closed, implementing the FIFO-within-margin rule
// (§4.6: "This matches Kraken's documented order").
func (s *Simulator) oldestOpenPosition(pair string) *lotstore.MarginPosition {
	var candidates []*lotstore.MarginPosition
	for _, p := range s.state.OpenMargin {
		if p.Pair == pair && (p.Status == lotstore.MarginOpenStatus || p.Status == lotstore.MarginPartiallyClosed) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].OpenedAt.Before(candidates[j].OpenedAt) })
	return candidates[0]
}

// marginDraw is one position's contribution to a multi-position margin
// drawdown: the volume taken from it and the slice of its fixed opening
// cost that volume corresponds to.
type marginDraw struct {
	pos           *lotstore.MarginPosition
	volume        decimal.Decimal
	openedCostUSD decimal.Decimal
}

// drawMarginVolumeFIFO deducts amount from the oldest open position(s) on
// pair, walking forward (oldest first) across multiple open positions when
// one alone does not cover amount, marking each position fully drained
// with finalStatus and pro-rating any position left partially open. It
// returns one marginDraw per position touched, in draw order, so the
// caller can attribute P/L and holding period per position rather than
// pretending the whole amount came from a single position.
func (s *Simulator) drawMarginVolumeFIFO(pair string, amount decimal.Decimal, finalStatus lotstore.MarginStatus) ([]marginDraw, error) {
	var draws []marginDraw
	remaining := amount
	for remaining.Sign() > 0 {
		pos := s.oldestOpenPosition(pair)
		if pos == nil {
			return nil, fmt.Errorf("no open margin position left on %s to absorb %s", pair, remaining)
		}
		if pos.OpenedVolume.LessThanOrEqual(remaining) {
			draws = append(draws, marginDraw{pos: pos, volume: pos.OpenedVolume, openedCostUSD: pos.OpenedProceedsUSD})
			remaining = remaining.Sub(pos.OpenedVolume)
			pos.OpenedVolume = decimal.Zero
			pos.Status = finalStatus
			continue
		}
		fraction := remaining.Div(pos.OpenedVolume)
		drawnCostUSD := pos.OpenedProceedsUSD.Mul(fraction)
		draws = append(draws, marginDraw{pos: pos, volume: remaining, openedCostUSD: drawnCostUSD})
		pos.OpenedProceedsUSD = pos.OpenedProceedsUSD.Sub(drawnCostUSD)
		pos.OpenedVolume = pos.OpenedVolume.Sub(remaining)
		pos.Status = lotstore.MarginPartiallyClosed
		remaining = decimal.Zero
	}
	return draws, nil
}
