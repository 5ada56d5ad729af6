package blockchain

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/logging"
	"src.d10.dev/taxcount/internal/normalize"
)

// Cache memoizes resolved transactions on disk in the directory passed to
// OpenCache (the configured cache directory, by default
// ./.taxcount/blockchain_memo); the directory is used as given, not derived
// from the backend name or placed under the user cache directory. It uses
// the same UTXO-keyed Badger layout the teacher's own storage package uses,
// specialized here to one key ("tx_<txid>") per resolved transaction
// instead of a UTXO/address pair.
type Cache struct {
	db *badger.DB
}

// OpenCache opens (creating if absent) the Badger directory backing the
// memoized-response cache. The caller owns the returned Cache's lifetime
// and must Close it at clean shutdown.
func OpenCache(dir string) (*Cache, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{logging.Component("blockchain_cache")}).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blockchain cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// cborRawTx is the on-disk shape of a cached RawTx: cbor doesn't round-trip
// decimal.Decimal without help, so amounts are stored as their fixed-point
// string form and re-parsed on read.
type cborRawTx struct {
	TxID    string
	Inputs  []cborTxInput
	Outputs []cborTxOutput
	Fee     string
}

type cborTxInput struct {
	TxID    string
	Vout    uint32
	Address string
	Amount  string
}

type cborTxOutput struct {
	Index   uint32
	Address string
	Amount  string
}

func cacheKey(txid ids.TxID) []byte {
	return []byte("tx_" + string(txid))
}

// Get returns the cached RawTx for txid, and false if it isn't cached.
func (c *Cache) Get(txid ids.TxID) (normalize.RawTx, bool, error) {
	var raw normalize.RawTx
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(cacheKey(txid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var stored cborRawTx
			if err := cbor.Unmarshal(val, &stored); err != nil {
				return err
			}
			raw, err = fromCBOR(stored)
			if err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return raw, found, err
}

// Put stores raw under txid, overwriting any prior entry.
func (c *Cache) Put(txid ids.TxID, raw normalize.RawTx) error {
	encoded, err := cbor.Marshal(toCBOR(raw))
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(cacheKey(txid), encoded)
	})
}

func toCBOR(raw normalize.RawTx) cborRawTx {
	stored := cborRawTx{TxID: string(raw.TxID), Fee: raw.Fee.String()}
	for _, in := range raw.Inputs {
		stored.Inputs = append(stored.Inputs, cborTxInput{
			TxID: string(in.Outpoint.TxID), Vout: in.Outpoint.Vout,
			Address: in.Address, Amount: in.Amount.String(),
		})
	}
	for _, out := range raw.Outputs {
		stored.Outputs = append(stored.Outputs, cborTxOutput{
			Index: out.Index, Address: out.Address, Amount: out.Amount.String(),
		})
	}
	return stored
}

func fromCBOR(stored cborRawTx) (normalize.RawTx, error) {
	fee, err := decimal.NewFromString(stored.Fee)
	if err != nil {
		return normalize.RawTx{}, fmt.Errorf("parsing cached fee: %w", err)
	}
	raw := normalize.RawTx{TxID: ids.TxID(stored.TxID), Fee: fee}
	for _, in := range stored.Inputs {
		amount, err := decimal.NewFromString(in.Amount)
		if err != nil {
			return normalize.RawTx{}, fmt.Errorf("parsing cached input amount: %w", err)
		}
		raw.Inputs = append(raw.Inputs, normalize.TxInput{
			Outpoint: ids.Outpoint{TxID: ids.TxID(in.TxID), Vout: in.Vout},
			Address:  in.Address,
			Amount:   amount,
		})
	}
	for _, out := range stored.Outputs {
		amount, err := decimal.NewFromString(out.Amount)
		if err != nil {
			return normalize.RawTx{}, fmt.Errorf("parsing cached output amount: %w", err)
		}
		raw.Outputs = append(raw.Outputs, normalize.TxOutput{
			Index: out.Index, Address: out.Address, Amount: amount,
		})
	}
	return raw, nil
}
