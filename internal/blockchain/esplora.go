// Package blockchain resolves Bitcoin txids into the inputs/outputs/fee
// shape normalize.BlockchainClient needs, against an Esplora-compatible
// REST backend (blockstream.info and mempool.space both speak this API),
// memoizing every resolution in an on-disk Badger cache so re-runs over
// the same wallet history never repeat a network call.
package blockchain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"src.d10.dev/taxcount/internal/ids"
	"src.d10.dev/taxcount/internal/logging"
	"src.d10.dev/taxcount/internal/normalize"
	"src.d10.dev/taxcount/internal/taxerr"
)

// satoshi is the fixed-point scale every Esplora amount field is quoted in.
var satoshi = decimal.New(1, 8)

// EsploraClient resolves txids against an Esplora-family REST API.
type EsploraClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewEsploraClient builds a client against baseURL (e.g.
// "https://blockstream.info/api"), optionally authenticating with apiKey
// as a bearer token when the backend requires one.
func NewEsploraClient(baseURL, apiKey string) *EsploraClient {
	return &EsploraClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// esploraTx is the subset of an Esplora /tx/:txid response this package
// cares about.
type esploraTx struct {
	TxID string `json:"txid"`
	Vin  []struct {
		TxID    string `json:"txid"`
		Vout    uint32 `json:"vout"`
		Prevout struct {
			ScriptPubKeyAddress string `json:"scriptpubkey_address"`
			Value               int64  `json:"value"`
		} `json:"prevout"`
	} `json:"vin"`
	Vout []struct {
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Fee int64 `json:"fee"`
}

// ResolveTx fetches and parses one transaction. Transient failures (HTTP
// 5xx, connection errors) are retried with exponential backoff before
// surfacing a BackendError; a 4xx response fails immediately, since retrying
// a malformed request or an unknown txid cannot succeed.
func (c *EsploraClient) ResolveTx(ctx context.Context, txid ids.TxID) (normalize.RawTx, error) {
	log := logging.Component("blockchain")
	var body []byte

	op := func() error {
		b, retryable, err := c.fetch(ctx, string(txid))
		if err != nil {
			if !retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		log.Warn("txid resolution failed", "txid", txid, "error", err)
		return normalize.RawTx{}, taxerr.New(taxerr.BackendError, fmt.Sprintf("resolving tx %s", txid), err)
	}

	var parsed esploraTx
	if err := json.Unmarshal(body, &parsed); err != nil {
		return normalize.RawTx{}, taxerr.New(taxerr.BackendError, fmt.Sprintf("parsing tx %s", txid), err)
	}
	return toRawTx(parsed), nil
}

func (c *EsploraClient) fetch(ctx context.Context, txid string) (body []byte, retryable bool, err error) {
	url := fmt.Sprintf("%s/tx/%s", c.baseURL, txid)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return b, false, nil
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("esplora %s: %d: %s", url, resp.StatusCode, bytes.TrimSpace(b))
	default:
		return nil, false, fmt.Errorf("esplora %s: %d: %s", url, resp.StatusCode, bytes.TrimSpace(b))
	}
}

func toRawTx(tx esploraTx) normalize.RawTx {
	raw := normalize.RawTx{
		TxID: ids.TxID(tx.TxID),
		Fee:  satoshiToBTC(tx.Fee),
	}
	for _, in := range tx.Vin {
		raw.Inputs = append(raw.Inputs, normalize.TxInput{
			Outpoint: ids.Outpoint{TxID: ids.TxID(in.TxID), Vout: in.Vout},
			Address:  in.Prevout.ScriptPubKeyAddress,
			Amount:   satoshiToBTC(in.Prevout.Value),
		})
	}
	for i, out := range tx.Vout {
		raw.Outputs = append(raw.Outputs, normalize.TxOutput{
			Index:   uint32(i),
			Address: out.ScriptPubKeyAddress,
			Amount:  satoshiToBTC(out.Value),
		})
	}
	return raw
}

func satoshiToBTC(sats int64) decimal.Decimal {
	return decimal.NewFromInt(sats).Div(satoshi)
}
