// Package rateoracle answers "what was the rate of this pair, at or before
// this instant" against a flat file of daily VWAPs.
//
// The lookup itself is the same idea as the teacher's "base" operation,
// which builds a `priceHistory map[string]*big.Rat` keyed by
// `historyKey(date, asset)` and looks up the nearest same-day price; this
// package generalizes that to an arbitrary timestamp granularity by storing
// a sorted slice per pair and binary-searching for the newest entry not
// after the query instant, rather than requiring an exact-day key match.
package rateoracle

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/money"
	"src.d10.dev/taxcount/internal/taxerr"
)

// Pair names a base/quote currency pair, e.g. {Base: "BTC", Quote: "USD"}.
type Pair struct {
	Base  money.Asset
	Quote money.Asset
}

func (p Pair) String() string { return fmt.Sprintf("%s/%s", p.Base, p.Quote) }

// entry is one row of the VWAP table: a day's volume-weighted average
// price and traded volume.
type entry struct {
	day    int64 // Unix day (seconds / 86400), the table's native key
	vwap   decimal.Decimal
	volume decimal.Decimal
}

// Oracle is a read-only, in-memory view of one or more VWAP table files.
// Construction is one pass over the files; Rate is O(log n) per pair.
type Oracle struct {
	tables map[Pair][]entry // kept sorted by day ascending
}

// Load reads every `{PERIOD}-vwap/{YEAR}-{PROVIDER}-{PAIR}.ron` file found
// under root and builds an Oracle. The ".ron" extension is preserved from
// upstream tooling; the parser only understands the flat line formats
// described below, not a general RON grammar.
//
// Line format (one record per line, blank lines and lines starting with
// "#" ignored):
//
//	<unix-day> <vwap> <volume>
//	<unix-day> <vwap> <volume> <base> <quote>
//
// A three-field line takes its pair from the file name's {PAIR} part,
// upper-cased and read as the base asset followed by a three-letter quote
// currency ("btcusd" is BTC/USD).
func Load(root string) (*Oracle, error) {
	o := &Oracle{tables: make(map[Pair][]entry)}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".ron") {
			return nil
		}
		return o.loadFile(path)
	})
	if err != nil {
		return nil, taxerr.New(taxerr.ParseError, "loading rate oracle tables", err)
	}

	for pair, entries := range o.tables {
		sort.Slice(entries, func(i, j int) bool { return entries[i].day < entries[j].day })
		o.tables[pair] = entries
	}
	return o, nil
}

// NewStatic builds an Oracle from a fixed rate table rather than VWAP
// files, each rate holding from the Unix epoch onward. Useful for seeding a
// pegged-asset pair the VWAP provider never quotes (e.g. a USD-stablecoin
// treated as 1:1) and for tests.
func NewStatic(rates map[Pair]decimal.Decimal) *Oracle {
	o := &Oracle{tables: make(map[Pair][]entry)}
	for pair, rate := range rates {
		o.tables[pair] = []entry{{day: 0, vwap: rate, volume: decimal.Zero}}
	}
	return o
}

func (o *Oracle) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), ".ron")
	namePair := strings.ToUpper(name[strings.LastIndex(name, "-")+1:])

	scanner := bufio.NewScanner(f)
	row := 0
	for scanner.Scan() {
		row++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 && len(fields) != 5 {
			return taxerr.At(taxerr.ParseError, path, row, fmt.Sprintf("expected 3 or 5 fields, got %d", len(fields)), nil)
		}
		day, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return taxerr.At(taxerr.ParseError, path, row, "bad unix-day field", err)
		}
		vwap, err := decimal.NewFromString(fields[1])
		if err != nil {
			return taxerr.At(taxerr.ParseError, path, row, "bad vwap field", err)
		}
		volume, err := decimal.NewFromString(fields[2])
		if err != nil {
			return taxerr.At(taxerr.ParseError, path, row, "bad volume field", err)
		}
		var pair Pair
		switch {
		case len(fields) == 5:
			pair = Pair{Base: money.Asset(fields[3]), Quote: money.Asset(fields[4])}
		case len(namePair) > 3:
			pair = Pair{Base: money.Asset(namePair[:len(namePair)-3]), Quote: money.Asset(namePair[len(namePair)-3:])}
		default:
			return taxerr.At(taxerr.ParseError, path, row, "file name names no pair for a three-field line", nil)
		}
		o.tables[pair] = append(o.tables[pair], entry{day: day, vwap: vwap, volume: volume})
	}
	return scanner.Err()
}

// Rate returns the most recent VWAP entry for pair whose day is at or
// before instant. Fails with NoRateAvailable if no such entry exists.
func (o *Oracle) Rate(pair Pair, instant time.Time) (decimal.Decimal, error) {
	entries := o.tables[pair]
	queryDay := instant.UTC().Unix() / 86400

	// sort.Search finds the first index whose day > queryDay; the entry we
	// want is the one immediately before that, i.e. the last entry with
	// day <= queryDay.
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].day > queryDay })
	if idx == 0 {
		return decimal.Zero, taxerr.New(taxerr.NoRateAvailable,
			fmt.Sprintf("no rate for %s at or before %s", pair, instant.UTC().Format(time.RFC3339)), nil)
	}
	return entries[idx-1].vwap, nil
}
