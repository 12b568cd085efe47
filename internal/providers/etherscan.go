package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// Etherscan talks to the V2 multichain API: one endpoint, the target
// network selected by chainid.
type Etherscan struct {
	run    *upstream.Runner
	codec  *amount.Codec
	reg    *registry.Registry
	apiKey string

	BaseURL string
}

func NewEtherscan(run *upstream.Runner, codec *amount.Codec, reg *registry.Registry, apiKey string) *Etherscan {
	return &Etherscan{
		run:     run,
		codec:   codec,
		reg:     reg,
		apiKey:  apiKey,
		BaseURL: "https://api.etherscan.io/v2/api",
	}
}

func (e *Etherscan) Name() string { return "etherscan" }

func (e *Etherscan) chainID(chain string) (int64, error) {
	coin, ok := e.reg.CoinByID(chain)
	if !ok || coin.ChainID == 0 {
		return 0, fmt.Errorf("%w: chain %q", ErrUnsupported, chain)
	}
	return coin.ChainID, nil
}

type escanEnvelope struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Result  json.RawMessage    `json:"result"`
	Error   *upstream.RPCError `json:"error"`
}

// call runs one V2 query and unwraps the envelope. Module "proxy"
// responses are bare JSON-RPC and carry no status field.
func (e *Etherscan) call(ctx context.Context, chain string, q url.Values) (json.RawMessage, error) {
	id, err := e.chainID(chain)
	if err != nil {
		return nil, err
	}
	q.Set("chainid", strconv.FormatInt(id, 10))
	q.Set("apikey", e.apiKey)

	var env escanEnvelope
	if err := e.run.GetJSON(ctx, e.BaseURL+"?"+q.Encode(), nil, &env); err != nil {
		return nil, err
	}
	if env.Error != nil {
		return nil, env.Error
	}
	if q.Get("module") == "proxy" {
		return env.Result, nil
	}
	if env.Status == "1" {
		return env.Result, nil
	}
	if env.Message == "No transactions found" {
		return nil, nil
	}
	return nil, fmt.Errorf("etherscan: %s: %s", env.Message, string(env.Result))
}

func (e *Etherscan) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("address", address)
	q.Set("tag", "latest")
	if contract != "" {
		q.Set("action", "tokenbalance")
		q.Set("contractaddress", contract)
	} else {
		q.Set("action", "balance")
	}
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return nil, err
	}
	var wei string
	if err := json.Unmarshal(raw, &wei); err != nil {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	return &models.BalanceResult{Balance: e.codec.ToCanonical(wei, chain, contract, true)}, nil
}

func (e *Etherscan) Nonce(ctx context.Context, chain, address string) (int64, error) {
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_getTransactionCount")
	q.Set("address", address)
	q.Set("tag", "pending")
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return 0, err
	}
	var hexCount string
	if err := json.Unmarshal(raw, &hexCount); err != nil {
		return 0, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	n, err := hexutil.DecodeUint64(hexCount)
	if err != nil {
		return 0, fmt.Errorf("parse nonce %q: %w", hexCount, err)
	}
	return int64(n), nil
}

type escanTx struct {
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	TimeStamp       string `json:"timeStamp"`
	IsError         string `json:"isError"`
	TxReceiptStatus string `json:"txreceipt_status"`
	GasUsed         string `json:"gasUsed"`
	GasPrice        string `json:"gasPrice"`
	TokenSymbol     string `json:"tokenSymbol"`
}

func (e *Etherscan) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	q := url.Values{}
	q.Set("module", "account")
	q.Set("address", address)
	q.Set("page", "1")
	q.Set("offset", strconv.Itoa(limit))
	q.Set("sort", "desc")
	if contract != "" {
		q.Set("action", "tokentx")
		q.Set("contractaddress", contract)
	} else {
		q.Set("action", "txlist")
	}
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return []models.Transfer{}, nil
	}
	var txs []escanTx
	if err := json.Unmarshal(raw, &txs); err != nil {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	coin, _ := e.reg.CoinByID(chain)
	transfers := make([]models.Transfer, 0, len(txs))
	for _, tx := range txs {
		st := 1
		if tx.IsError == "1" || tx.TxReceiptStatus == "0" {
			st = 0
		}
		sym := coin.Symbol
		if contract != "" {
			sym = tx.TokenSymbol
			if sym == "" {
				sym = "ERC20"
			}
		}
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		transfers = append(transfers, models.Transfer{
			Txid:      tx.Hash,
			From:      tx.From,
			To:        tx.To,
			Value:     e.codec.ToCanonical(tx.Value, chain, contract, true),
			Timestamp: ts * 1000,
			Symbol:    sym,
			Status:    &st,
			GasUsed:   tx.GasUsed,
			GasPrice:  tx.GasPrice,
		})
	}
	return transfers, nil
}

// highLimitChains are rollups whose native transfers also pay L1 data
// fees, so the safe limit is far above 21000.
var highLimitChains = map[string]bool{
	"arbitrum": true, "optimism": true, "base": true,
	"scroll": true, "linea": true, "blast": true,
}

func (e *Etherscan) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_gasPrice")
	priceWei := uint64(2 * params.GWei)
	if raw, err := e.call(ctx, chain, q); err == nil {
		var hexPrice string
		if json.Unmarshal(raw, &hexPrice) == nil {
			if v, err := hexutil.DecodeUint64(hexPrice); err == nil && v > 0 {
				priceWei = v
			}
		}
	} else if _, uerr := e.chainID(chain); uerr != nil {
		return nil, uerr
	}

	limit := 21000
	if contract != "" {
		limit = 100000
	} else if highLimitChains[chain] {
		limit = 600000
	}
	return &models.GasEstimate{
		GasPrice: strconv.FormatUint(priceWei, 10),
		GasLimit: strconv.Itoa(limit),
	}, nil
}

func (e *Etherscan) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	if !strings.HasPrefix(txHex, "0x") {
		txHex = "0x" + txHex
	}
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_sendRawTransaction")
	q.Set("hex", txHex)
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return "", err
	}
	var txid string
	if err := json.Unmarshal(raw, &txid); err != nil {
		return "", &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	if !strings.HasPrefix(txid, "0x") {
		return "", fmt.Errorf("broadcast rejected: %s", txid)
	}
	return txid, nil
}

func (e *Etherscan) LatestBlock(ctx context.Context, chain string) (map[string]any, error) {
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_getBlockByNumber")
	q.Set("tag", "latest")
	q.Set("boolean", "false")
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return nil, err
	}
	var head struct {
		Hash       string `json:"hash"`
		Number     string `json:"number"`
		Timestamp  string `json:"timestamp"`
		ParentHash string `json:"parentHash"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	if head.Hash == "" {
		return nil, fmt.Errorf("eth_getBlockByNumber: empty header")
	}
	number, err := hexutil.DecodeUint64(head.Number)
	if err != nil {
		return nil, fmt.Errorf("parse block number %q: %w", head.Number, err)
	}
	ts, err := hexutil.DecodeUint64(head.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse block timestamp %q: %w", head.Timestamp, err)
	}
	return map[string]any{
		"hash":       head.Hash,
		"number":     number,
		"timestamp":  ts,
		"parentHash": head.ParentHash,
	}, nil
}

func (e *Etherscan) Transaction(ctx context.Context, chain, txid string) (map[string]any, error) {
	q := url.Values{}
	q.Set("module", "proxy")
	q.Set("action", "eth_getTransactionByHash")
	q.Set("txhash", txid)
	raw, err := e.call(ctx, chain, q)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNotFound
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	return out, nil
}
