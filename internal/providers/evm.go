package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// evmClient is the thin JSON-RPC surface shared by the public-node
// adapters (BSC, Avalanche, Ethereum Classic).
type evmClient struct {
	run *upstream.Runner
	url string
}

func (c evmClient) hexString(ctx context.Context, method string, params ...any) (string, error) {
	var out string
	if err := c.run.RPC(ctx, c.url, nil, method, params, &out); err != nil {
		return "", err
	}
	return out, nil
}

func (c evmClient) bigInt(ctx context.Context, method string, params ...any) (*big.Int, error) {
	hex, err := c.hexString(ctx, method, params...)
	if err != nil {
		return nil, err
	}
	v, err := hexutil.DecodeBig(hex)
	if err != nil {
		return nil, fmt.Errorf("%s: parse %q: %w", method, hex, err)
	}
	return v, nil
}

func (c evmClient) nonce(ctx context.Context, address, tag string) (int64, error) {
	n, err := c.bigInt(ctx, "eth_getTransactionCount", address, tag)
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

func (c evmClient) gasPrice(ctx context.Context, floorWei int64) string {
	price := big.NewInt(floorWei)
	if v, err := c.bigInt(ctx, "eth_gasPrice"); err == nil && v.Cmp(price) > 0 {
		price = v
	}
	return price.String()
}

func (c evmClient) sendRaw(ctx context.Context, txHex string) (string, error) {
	if !strings.HasPrefix(txHex, "0x") {
		txHex = "0x" + txHex
	}
	hash, err := c.hexString(ctx, "eth_sendRawTransaction", txHex)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(hash, "0x") {
		return "", fmt.Errorf("broadcast rejected: %s", hash)
	}
	return hash, nil
}

// LatestBlock returns the header subset wallets consume. Promoted onto
// every embedding adapter, so BSC/Avalanche/ETC all serve /block.
func (c evmClient) LatestBlock(ctx context.Context, chain string) (map[string]any, error) {
	var head struct {
		Hash       string `json:"hash"`
		Number     string `json:"number"`
		Timestamp  string `json:"timestamp"`
		ParentHash string `json:"parentHash"`
	}
	if err := c.run.RPC(ctx, c.url, nil, "eth_getBlockByNumber", []any{"latest", false}, &head); err != nil {
		return nil, err
	}
	if head.Hash == "" {
		return nil, fmt.Errorf("eth_getBlockByNumber: empty header")
	}
	number, err := hexutil.DecodeUint64(head.Number)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber: parse number %q: %w", head.Number, err)
	}
	ts, err := hexutil.DecodeUint64(head.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber: parse timestamp %q: %w", head.Timestamp, err)
	}
	return map[string]any{
		"hash":       head.Hash,
		"number":     number,
		"timestamp":  ts,
		"parentHash": head.ParentHash,
	}, nil
}

// erc20BalanceData builds the balanceOf(address) calldata.
func erc20BalanceData(address string) string {
	addr := strings.TrimPrefix(strings.ToLower(address), "0x")
	return "0x70a08231" + strings.Repeat("0", 64-len(addr)) + addr
}

// scanOptions tunes the etherscan-compatible history fetch for the
// quirks of each explorer clone.
type scanOptions struct {
	baseURL      string
	nativeSymbol string
	skipErrored  bool // drop rows where isError == "1"
	withStatus   bool // emit the per-row status flag
	stripMinus   bool // routescan reports outgoing values as negative
	requireHash  bool // blockscout pads pages with hashless rows
}

func scanHistory(ctx context.Context, run *upstream.Runner, codec *amount.Codec, chain, address, contract string, limit int, opt scanOptions) ([]models.Transfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("address", address)
	q.Set("startblock", "0")
	q.Set("endblock", "99999999")
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(limit))
	q.Set("sort", "desc")
	if contract != "" {
		q.Set("action", "tokentx")
		q.Set("contractaddress", contract)
	} else {
		q.Set("action", "txlist")
	}

	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := run.GetJSON(ctx, opt.baseURL+"?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if env.Status != "1" {
		if strings.HasPrefix(env.Message, "No transactions") {
			return []models.Transfer{}, nil
		}
		return nil, fmt.Errorf("scan history: %s: %s", env.Message, string(env.Result))
	}
	var txs []escanTx
	if err := json.Unmarshal(env.Result, &txs); err != nil {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}

	transfers := make([]models.Transfer, 0, len(txs))
	for _, tx := range txs {
		if opt.requireHash && tx.Hash == "" {
			continue
		}
		if opt.skipErrored && tx.IsError == "1" {
			continue
		}
		val := tx.Value
		if opt.stripMinus {
			val = strings.TrimPrefix(val, "-")
		}
		sym := opt.nativeSymbol
		if contract != "" {
			sym = tx.TokenSymbol
			if sym == "" {
				sym = "TOKEN"
			}
		}
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		tr := models.Transfer{
			Txid:      tx.Hash,
			From:      tx.From,
			To:        tx.To,
			Value:     codec.ToCanonical(val, chain, contract, true),
			Timestamp: ts * 1000,
			Symbol:    sym,
			GasUsed:   tx.GasUsed,
			GasPrice:  tx.GasPrice,
		}
		if opt.withStatus {
			st := 1
			if tx.IsError == "1" || tx.TxReceiptStatus == "0" {
				st = 0
			}
			tr.Status = &st
		}
		transfers = append(transfers, tr)
	}
	return transfers, nil
}
