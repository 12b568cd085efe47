package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// rippleEpochOffset converts Ripple ledger time (seconds since
// 2000-01-01) to the Unix epoch.
const rippleEpochOffset = 946684800

const reserveCacheTTL = time.Hour

// Ankr serves XRP through the XRPL JSON-RPC endpoint and TON balance
// through the ton_api_v2 gateway. Ledger reserve parameters change
// rarely, so they are cached and refreshed through singleflight.
type Ankr struct {
	run    *upstream.Runner
	codec  *amount.Codec
	apiKey string

	BaseURL string

	mu          sync.Mutex
	reserves    xrpReserves
	reservesExp time.Time
	sf          singleflight.Group
	now         func() time.Time
}

type xrpReserves struct {
	Base  float64
	Owner float64
}

func NewAnkr(run *upstream.Runner, codec *amount.Codec, apiKey string) *Ankr {
	return &Ankr{
		run:     run,
		codec:   codec,
		apiKey:  apiKey,
		BaseURL: "https://rpc.ankr.com",
		now:     time.Now,
	}
}

func (a *Ankr) Name() string { return "ankr" }

func (a *Ankr) xrpURL() string {
	return fmt.Sprintf("%s/xrp_mainnet/%s", a.BaseURL, a.apiKey)
}

func (a *Ankr) tonURL() string {
	return fmt.Sprintf("%s/ton_api_v2/%s", a.BaseURL, a.apiKey)
}

// xrpCall wraps the XRPL convention of a single positional object
// parameter and a result that carries its own status field.
func (a *Ankr) xrpCall(ctx context.Context, method string, params map[string]any, out any) error {
	return a.run.RPC(ctx, a.xrpURL(), nil, method, []any{params}, out)
}

func (a *Ankr) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	switch chain {
	case "ripple":
		return a.xrpBalance(ctx, address)
	case "ton":
		return a.tonBalance(ctx, chain, address)
	default:
		return nil, fmt.Errorf("%w: balance for %s", ErrUnsupported, chain)
	}
}

func (a *Ankr) xrpBalance(ctx context.Context, address string) (*models.BalanceResult, error) {
	var out struct {
		Status      string `json:"status"`
		Error       string `json:"error"`
		LedgerIndex int64  `json:"ledger_index"`
		AccountData struct {
			Balance  string `json:"Balance"`
			Sequence int64  `json:"Sequence"`
		} `json:"account_data"`
	}
	err := a.xrpCall(ctx, "account_info", map[string]any{
		"account":      address,
		"strict":       true,
		"ledger_index": "validated",
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Status != "success" || out.Error == "actNotFound" {
		// Unfunded accounts do not exist on the XRP ledger.
		return &models.BalanceResult{
			Balance: amount.Unknown,
			Extra:   map[string]any{"sequence": int64(0)},
		}, nil
	}
	res := a.ledgerReserves(ctx)
	return &models.BalanceResult{
		Balance: a.codec.ToCanonical(out.AccountData.Balance, "ripple", "", true),
		Extra: map[string]any{
			"sequence":      out.AccountData.Sequence,
			"ledger_index":  out.LedgerIndex,
			"base_reserve":  res.Base,
			"owner_reserve": res.Owner,
		},
	}, nil
}

// ledgerReserves returns the cached reserve parameters, refreshing at
// most once per TTL across all concurrent callers.
func (a *Ankr) ledgerReserves(ctx context.Context) xrpReserves {
	a.mu.Lock()
	if a.now().Before(a.reservesExp) {
		r := a.reserves
		a.mu.Unlock()
		return r
	}
	a.mu.Unlock()

	v, _, _ := a.sf.Do("xrp_reserves", func() (any, error) {
		var out struct {
			Info struct {
				ValidatedLedger struct {
					ReserveBaseXRP json.Number `json:"reserve_base_xrp"`
					ReserveIncXRP  json.Number `json:"reserve_inc_xrp"`
				} `json:"validated_ledger"`
			} `json:"info"`
		}
		fallback := xrpReserves{Base: 10.0, Owner: 2.0}
		if err := a.xrpCall(ctx, "server_info", map[string]any{}, &out); err != nil {
			return fallback, nil
		}
		base, err1 := out.Info.ValidatedLedger.ReserveBaseXRP.Float64()
		owner, err2 := out.Info.ValidatedLedger.ReserveIncXRP.Float64()
		if err1 != nil || err2 != nil {
			return fallback, nil
		}
		r := xrpReserves{Base: base, Owner: owner}
		a.mu.Lock()
		a.reserves = r
		a.reservesExp = a.now().Add(reserveCacheTTL)
		a.mu.Unlock()
		return r, nil
	})
	return v.(xrpReserves)
}

func (a *Ankr) tonBalance(ctx context.Context, chain, address string) (*models.BalanceResult, error) {
	var nano json.Number
	err := a.run.RPC(ctx, a.tonURL(), nil, "getAddressBalance", map[string]string{"address": address}, &nano)
	if err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: a.codec.ToCanonical(nano.String(), chain, "", true)}, nil
}

func (a *Ankr) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	if chain != "ripple" {
		return nil, fmt.Errorf("%w: history for %s", ErrUnsupported, chain)
	}
	var out struct {
		Transactions []struct {
			Meta struct {
				TransactionResult string `json:"TransactionResult"`
			} `json:"meta"`
			Tx struct {
				Hash            string          `json:"hash"`
				TransactionType string          `json:"TransactionType"`
				Account         string          `json:"Account"`
				Destination     string          `json:"Destination"`
				Amount          json.RawMessage `json:"Amount"`
				Date            int64           `json:"date"`
			} `json:"tx"`
		} `json:"transactions"`
	}
	err := a.xrpCall(ctx, "account_tx", map[string]any{
		"account":          address,
		"binary":           false,
		"forward":          false,
		"ledger_index_min": -1,
		"ledger_index_max": -1,
		"limit":            limit,
	}, &out)
	if err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(out.Transactions))
	for _, rec := range out.Transactions {
		if rec.Meta.TransactionResult != "tesSUCCESS" {
			continue
		}
		if rec.Tx.TransactionType != "Payment" {
			continue
		}
		// Object-valued Amount means an issued currency, not XRP.
		var drops string
		if err := json.Unmarshal(rec.Tx.Amount, &drops); err != nil {
			continue
		}
		transfers = append(transfers, models.Transfer{
			Txid:      rec.Tx.Hash,
			From:      rec.Tx.Account,
			To:        rec.Tx.Destination,
			Value:     a.codec.ToCanonical(drops, chain, "", true),
			Timestamp: (rec.Tx.Date + rippleEpochOffset) * 1000,
			Symbol:    "XRP",
		})
	}
	return transfers, nil
}

func (a *Ankr) Fee(ctx context.Context, chain string) (*models.FeeQuote, error) {
	if chain != "ripple" {
		return nil, fmt.Errorf("%w: fee for %s", ErrUnsupported, chain)
	}
	var out struct {
		Drops struct {
			OpenLedgerFee json.Number `json:"open_ledger_fee"`
		} `json:"drops"`
	}
	fee := "0.000012"
	if err := a.xrpCall(ctx, "fee", map[string]any{}, &out); err == nil {
		drops, err := out.Drops.OpenLedgerFee.Int64()
		if err != nil || drops < 12 {
			drops = 12
		}
		fee = a.codec.ToCanonical(strconv.FormatInt(drops, 10), chain, "", true)
	}
	return &models.FeeQuote{Slow: fee, Medium: fee, Fast: fee}, nil
}

func (a *Ankr) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	if chain != "ripple" {
		return "", fmt.Errorf("%w: broadcast for %s", ErrUnsupported, chain)
	}
	var out struct {
		EngineResult string `json:"engine_result"`
		TxJSON       struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
	}
	blob := strings.TrimPrefix(txHex, "0x")
	if err := a.xrpCall(ctx, "submit", map[string]any{"tx_blob": blob}, &out); err != nil {
		return "", err
	}
	if !strings.HasPrefix(out.EngineResult, "tes") {
		return "", fmt.Errorf("xrp submit rejected: %s", out.EngineResult)
	}
	return out.TxJSON.Hash, nil
}
