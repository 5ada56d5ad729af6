package normalize

import (
	"fmt"
	"sort"
	"strings"

	"src.d10.dev/taxcount/internal/money"
)

// NormalizeExchangeLedger converts one exchange's ledger + trades rows
// into NormalizedEvents. Ledger rows are authoritative for balance
// movement; the trades file is consulted only to mark margin trades via a
// populated margin column and to supply a margin open's pair, side, volume
// and cost (§4.3).
//
// Margin lifecycle rows are identified the way the corpus's own Kraken
// ledger converter identifies them: literal ledger "type"/"subtype"
// values ("margin trade", "rollover", "settled"). This engine additionally
// recognizes subtype "open" and "close" to complete the lifecycle, since
// the retrieved fixtures only exercised rollover/settle; that extension is
// recorded in DESIGN.md rather than guessed silently.
func NormalizeExchangeLedger(exchangeID string, ledgerRows []LedgerRow, tradesRows []TradesRow) ([]Event, error) {
	tradesByRefID := indexTradesByRefID(tradesRows)
	groups := groupPreservingOrder(ledgerRows)

	var events []Event
	for _, refID := range groups.order {
		rows := groups.byRefID[refID]
		kind := strings.ToLower(rows[0].Type)

		switch {
		case kind == "deposit":
			events = append(events, depositWithdrawalEvents(exchangeID, rows)...)
		case kind == "withdrawal":
			events = append(events, depositWithdrawalEvents(exchangeID, rows)...)
		case kind == "trade":
			trade, ok := tradesByRefID[refID]
			if ok && trade.IsMargin() {
				events = append(events, marginOpenEvent(exchangeID, rows, trade))
			} else {
				events = append(events, tradeLegEvents(exchangeID, rows, trade, ok)...)
			}
		case kind == "margin":
			events = append(events, marginLifecycleEvent(exchangeID, rows))
		case kind == "transfer":
			events = append(events, internalMoveEvents(exchangeID, rows)...)
		case kind == "staking":
			events = append(events, incomeEvents(exchangeID, rows)...)
		default:
			// Unrecognized ledger type: classify by sign, the same
			// conservative default the corpus's converters fall back to
			// for rows they don't special-case.
			events = append(events, depositWithdrawalEvents(exchangeID, rows)...)
		}
	}
	return events, nil
}

type orderedGroups struct {
	order   []string
	byRefID map[string][]LedgerRow
}

func groupPreservingOrder(rows []LedgerRow) orderedGroups {
	g := orderedGroups{byRefID: map[string][]LedgerRow{}}
	for _, r := range rows {
		if _, ok := g.byRefID[r.RefID]; !ok {
			g.order = append(g.order, r.RefID)
		}
		g.byRefID[r.RefID] = append(g.byRefID[r.RefID], r)
	}
	return g
}

func indexTradesByRefID(trades []TradesRow) map[string]TradesRow {
	idx := make(map[string]TradesRow)
	for _, t := range trades {
		for _, refID := range strings.Split(t.Ledgers, ",") {
			refID = strings.TrimSpace(refID)
			if refID != "" {
				idx[refID] = t
			}
		}
	}
	return idx
}

func depositWithdrawalEvents(exchangeID string, rows []LedgerRow) []Event {
	var out []Event
	for _, r := range rows {
		kind := Deposit
		if r.Amount.Sign() < 0 {
			kind = Withdrawal
		}
		out = append(out, Event{
			Kind:           kind,
			Timestamp:      r.Time,
			Provenance:     r.RowID,
			SourcePriority: PriorityExchangeLedger,
			RefGroupID:     r.RefID,
			AccountKind:    AccountExchange,
			Account:        exchangeID,
			Asset:          r.Asset,
			Amount:         r.Amount,
			Fee:            r.Fee,
		})
		if r.Fee.Sign() != 0 {
			out = append(out, Event{
				Kind:           Fee,
				Timestamp:      r.Time,
				Provenance:     r.RowID,
				SourcePriority: PriorityExchangeLedger,
				RefGroupID:     r.RefID,
				AccountKind:    AccountExchange,
				Account:        exchangeID,
				Asset:          r.Asset,
				Amount:         r.Fee.Abs().Neg(), // fee is always an outflow
			})
		}
	}
	return out
}

func tradeLegEvents(exchangeID string, rows []LedgerRow, trade TradesRow, haveTrade bool) []Event {
	var out []Event
	sorted := append([]LedgerRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount.GreaterThan(sorted[j].Amount) })

	var buyLeg, sellLeg *LedgerRow
	for i := range sorted {
		if sorted[i].Amount.Sign() > 0 && buyLeg == nil {
			buyLeg = &sorted[i]
		} else if sorted[i].Amount.Sign() < 0 && sellLeg == nil {
			sellLeg = &sorted[i]
		}
	}

	if buyLeg != nil {
		e := Event{
			Kind:           TradeLeg,
			Timestamp:      buyLeg.Time,
			Provenance:     buyLeg.RowID,
			SourcePriority: PriorityExchangeLedger,
			RefGroupID:     buyLeg.RefID,
			AccountKind:    AccountExchange,
			Account:        exchangeID,
			Asset:          buyLeg.Asset,
			Amount:         buyLeg.Amount,
			Fee:            buyLeg.Fee,
		}
		if sellLeg != nil {
			e.CounterAsset = sellLeg.Asset
			e.CounterAmount = sellLeg.Amount.Abs()
		}
		out = append(out, e)
	}
	if sellLeg != nil {
		e := Event{
			Kind:           TradeLeg,
			Timestamp:      sellLeg.Time,
			Provenance:     sellLeg.RowID,
			SourcePriority: PriorityExchangeLedger,
			RefGroupID:     sellLeg.RefID,
			AccountKind:    AccountExchange,
			Account:        exchangeID,
			Asset:          sellLeg.Asset,
			Amount:         sellLeg.Amount,
			Fee:            sellLeg.Fee,
		}
		if buyLeg != nil {
			e.CounterAsset = buyLeg.Asset
			e.CounterAmount = buyLeg.Amount.Abs()
		}
		out = append(out, e)
	}
	_ = haveTrade // trade row is consulted by the caller only to detect margin; no further fields needed here
	return out
}

func marginOpenEvent(exchangeID string, rows []LedgerRow, trade TradesRow) Event {
	side := "long"
	if strings.EqualFold(trade.Type, "sell") {
		side = "short"
	}
	collateral := money.Asset("USD")
	for _, r := range rows {
		if r.Amount.Sign() < 0 {
			collateral = r.Asset
		}
	}
	return Event{
		Kind:                MarginOpen,
		Timestamp:           trade.Time,
		Provenance:          rows[0].RowID,
		SourcePriority:      PriorityExchangeLedger,
		RefGroupID:          rows[0].RefID,
		AccountKind:         AccountExchange,
		Account:             exchangeID,
		Asset:               money.Asset(strings.SplitN(trade.Pair, "/", 2)[0]),
		Amount:              trade.Vol,
		MarginPair:          trade.Pair,
		MarginSide:          side,
		CounterAmount:       trade.Cost,
		CounterpartyAccount: collateralAccount(collateral),
	}
}

func collateralAccount(asset money.Asset) string {
	return fmt.Sprintf("collateral:%s", asset)
}

// marginLifecycleEvent handles ledger rows of type "margin" whose subtype
// identifies where in the position lifecycle this row falls.
func marginLifecycleEvent(exchangeID string, rows []LedgerRow) Event {
	r := rows[0]
	kind := MarginRollover
	switch strings.ToLower(r.Subtype) {
	case "rollover":
		kind = MarginRollover
	case "settled":
		kind = MarginSettle
	case "open":
		kind = MarginOpen
	case "close":
		kind = MarginClose
	}
	return Event{
		Kind:           kind,
		Timestamp:      r.Time,
		Provenance:     r.RowID,
		SourcePriority: PriorityExchangeLedger,
		RefGroupID:     r.RefID,
		AccountKind:    AccountExchange,
		Account:        exchangeID,
		Asset:          r.Asset,
		Amount:         r.Amount,
		MarginPair:     fmt.Sprintf("%s/USD", r.Asset),
	}
}

func internalMoveEvents(exchangeID string, rows []LedgerRow) []Event {
	var out []Event
	for _, r := range rows {
		out = append(out, Event{
			Kind:           InternalMove,
			Timestamp:      r.Time,
			Provenance:     r.RowID,
			SourcePriority: PriorityExchangeLedger,
			RefGroupID:     r.RefID,
			AccountKind:    AccountExchange,
			Account:        exchangeID,
			Asset:          r.Asset,
			Amount:         r.Amount,
		})
	}
	return out
}

func incomeEvents(exchangeID string, rows []LedgerRow) []Event {
	var out []Event
	for _, r := range rows {
		if r.Amount.Sign() <= 0 {
			continue
		}
		out = append(out, Event{
			Kind:           Income,
			Timestamp:      r.Time,
			Provenance:     r.RowID,
			SourcePriority: PriorityExchangeLedger,
			RefGroupID:     r.RefID,
			AccountKind:    AccountExchange,
			Account:        exchangeID,
			Asset:          r.Asset,
			Amount:         r.Amount,
		})
	}
	return out
}
