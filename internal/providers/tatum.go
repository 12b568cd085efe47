package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// tatumChains maps gateway chain keys to Tatum API path segments.
var tatumChains = map[string]string{
	"bitcoin":      "bitcoin",
	"ethereum":     "ethereum",
	"smartchain":   "bsc",
	"polygon":      "matic",
	"litecoin":     "litecoin",
	"doge":         "dogecoin",
	"tron":         "tron",
	"solana":       "solana",
	"ripple":       "xrp",
	"bitcoincash":  "bcash",
	"ton":          "ton",
	"sui":          "sui",
	"dash":         "dash",
	"classic":      "etc",
	"arbitrum":     "arb",
	"avalanchec":   "avalanche",
	"arbitrumnova": "arbitrum-nova",
}

// tokenSymbols picks the path segment for the v3 token endpoints.
var tokenSymbols = map[string]string{
	"smartchain": "BSC",
	"polygon":    "MATIC",
	"ethereum":   "ETH",
}

// Tatum is the default provider: it covers every chain the more
// specialized sources do not claim. The gateway node URLs bypass the
// REST API where Tatum's own coverage is flaky.
type Tatum struct {
	run    *upstream.Runner
	codec  *amount.Codec
	apiKey string

	BaseURL    string
	TronGW     string
	TonGW      string
	SolanaGW   string
	RostrumURL string

	energy EnergyReader
	now    func() time.Time
}

func NewTatum(run *upstream.Runner, codec *amount.Codec, apiKey string, energy EnergyReader) *Tatum {
	return &Tatum{
		run:        run,
		codec:      codec,
		apiKey:     apiKey,
		BaseURL:    "https://api.tatum.io",
		TronGW:     "https://tron-mainnet.gateway.tatum.io",
		TonGW:      "https://ton-mainnet.gateway.tatum.io",
		SolanaGW:   "https://solana-mainnet.gateway.tatum.io",
		RostrumURL: "https://bch-mainnet-rostrum.gateway.tatum.io",
		energy:     energy,
		now:        time.Now,
	}
}

func (t *Tatum) Name() string { return "tatum" }

func (t *Tatum) headers() map[string]string {
	return map[string]string{"x-api-key": t.apiKey}
}

func (t *Tatum) chain(key string) (string, error) {
	c, ok := tatumChains[strings.ToLower(key)]
	if !ok {
		return "", fmt.Errorf("%w: chain %q", ErrUnsupported, key)
	}
	return c, nil
}

func tokenSymbol(chain string) string {
	if s, ok := tokenSymbols[chain]; ok {
		return s
	}
	return strings.ToUpper(chain)
}

// ---- balance ----

func (t *Tatum) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	switch {
	case tc == "tron":
		return t.tronBalance(ctx, chain, address, contract)
	case tc == "bcash":
		return t.bchBalance(ctx, chain, address)
	case tc == "ton":
		return t.tonBalance(ctx, chain, address)
	case contract != "":
		return t.tokenBalance(ctx, chain, tc, address, contract)
	case tc == "bitcoin" || tc == "litecoin" || tc == "dogecoin" || tc == "dash":
		return t.utxoChainBalance(ctx, chain, tc, address)
	default:
		return t.evmBalance(ctx, chain, tc, address)
	}
}

type tronAccount struct {
	Balance    json.Number         `json:"balance"`
	CreateTime int64               `json:"createTime"`
	Bandwidth  int64               `json:"bandwidth"`
	FreeNet    int64               `json:"freeNetLimit"`
	TRC10      []map[string]string `json:"trc10"`
	TRC20      []map[string]string `json:"trc20"`
}

func (t *Tatum) tronAccount(ctx context.Context, address string) (*tronAccount, error) {
	var acc tronAccount
	url := fmt.Sprintf("%s/v3/tron/account/%s", t.BaseURL, address)
	if err := t.run.GetJSON(ctx, url, t.headers(), &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (t *Tatum) tronBalance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	acc, err := t.tronAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	if contract != "" {
		for _, tok := range append(acc.TRC10, acc.TRC20...) {
			if raw, ok := tok[contract]; ok {
				return &models.BalanceResult{Balance: t.codec.ToCanonical(raw, chain, contract, true)}, nil
			}
		}
		// Account holds none of this token.
		return &models.BalanceResult{Balance: amount.Zero}, nil
	}
	return &models.BalanceResult{Balance: t.codec.ToCanonical(acc.Balance.String(), chain, "", true)}, nil
}

func (t *Tatum) bchBalance(ctx context.Context, chain, address string) (*models.BalanceResult, error) {
	var out struct {
		Confirmed json.Number `json:"confirmed"`
	}
	if err := t.run.RPC(ctx, t.RostrumURL, t.headers(), "blockchain.address.get_balance", []any{address}, &out); err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: t.codec.ToCanonical(out.Confirmed.String(), chain, "", true)}, nil
}

func (t *Tatum) tonBalance(ctx context.Context, chain, address string) (*models.BalanceResult, error) {
	var out struct {
		Result json.Number `json:"result"`
	}
	u := fmt.Sprintf("%s/getAddressBalance?address=%s", t.TonGW, url.QueryEscape(address))
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: t.codec.ToCanonical(out.Result.String(), chain, "", true)}, nil
}

func (t *Tatum) tokenBalance(ctx context.Context, chain, tc, address, contract string) (*models.BalanceResult, error) {
	var out struct {
		Balance json.Number `json:"balance"`
	}
	u := fmt.Sprintf("%s/v3/blockchain/token/balance/%s/%s/%s", t.BaseURL, tokenSymbol(chain), contract, address)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: t.codec.ToCanonical(out.Balance.String(), chain, contract, true)}, nil
}

// utxoChainBalance reconciles confirmed and pending flows. A pending
// incoming payment shows up immediately; a pending outgoing spend is
// ignored because it includes change and would zero the display.
func (t *Tatum) utxoChainBalance(ctx context.Context, chain, tc, address string) (*models.BalanceResult, error) {
	addr := address
	var out struct {
		Incoming        json.Number `json:"incoming"`
		Outgoing        json.Number `json:"outgoing"`
		IncomingPending json.Number `json:"incomingPending"`
		OutgoingPending json.Number `json:"outgoingPending"`
	}
	u := fmt.Sprintf("%s/v3/%s/address/balance/%s", t.BaseURL, tc, addr)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	in, _ := out.Incoming.Float64()
	outg, _ := out.Outgoing.Float64()
	inPend, _ := out.IncomingPending.Float64()
	balance := in - outg + inPend
	if balance < 0 {
		balance = 0
	}
	raw := strconv.FormatFloat(balance, 'f', -1, 64)
	return &models.BalanceResult{Balance: t.codec.ToCanonical(raw, chain, "", false)}, nil
}

func (t *Tatum) evmBalance(ctx context.Context, chain, tc, address string) (*models.BalanceResult, error) {
	var out struct {
		Balance json.Number `json:"balance"`
	}
	u := fmt.Sprintf("%s/v3/%s/account/balance/%s", t.BaseURL, tc, address)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: t.codec.ToCanonical(out.Balance.String(), chain, "", false)}, nil
}

// ---- history ----

func (t *Tatum) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	switch tc {
	case "tron":
		return t.tronHistory(ctx, chain, address, contract, limit)
	case "bsc":
		return t.bscHistory(ctx, chain, address, contract, limit)
	case "bcash":
		return t.bchHistory(ctx, chain, address, limit)
	case "ton":
		return t.tonHistory(ctx, chain, address, limit)
	case "solana":
		return t.solHistory(ctx, chain, address, limit)
	case "ethereum", "matic":
		return t.evmHistory(ctx, chain, tc, address, contract, limit)
	case "bitcoin", "litecoin", "dogecoin":
		return t.btcHistory(ctx, chain, tc, address, limit)
	default:
		return nil, fmt.Errorf("%w: history for %s", ErrUnsupported, chain)
	}
}

func (t *Tatum) tronHistory(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	u := fmt.Sprintf("%s/v3/tron/transaction/account/%s", t.BaseURL, address)
	if contract != "" {
		u += "/trc20"
	}
	var out struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	raws := out.Transactions
	if len(raws) > limit {
		raws = raws[:limit]
	}

	if contract != "" {
		type trc20Tx struct {
			TxID      string `json:"txID"`
			From      string `json:"from"`
			To        string `json:"to"`
			Value     string `json:"value"`
			TokenInfo struct {
				Symbol string `json:"symbol"`
			} `json:"tokenInfo"`
		}
		transfers := make([]models.Transfer, 0, len(raws))
		for _, raw := range raws {
			var tx trc20Tx
			if err := json.Unmarshal(raw, &tx); err != nil {
				continue
			}
			sym := tx.TokenInfo.Symbol
			if sym == "" {
				sym = "USDT"
			}
			transfers = append(transfers, models.Transfer{
				Txid:   tx.TxID,
				From:   tx.From,
				To:     tx.To,
				Value:  t.codec.ToCanonical(tx.Value, chain, contract, true),
				Symbol: sym,
			})
		}
		// The TRC20 endpoint omits timestamps; backfill positionally
		// from the Tron node.
		g, gctx := errgroup.WithContext(ctx)
		for i := range transfers {
			i := i
			g.Go(func() error {
				transfers[i].Timestamp = t.tronTimestamp(gctx, transfers[i].Txid)
				return nil
			})
		}
		g.Wait()
		return transfers, nil
	}

	type tronTx struct {
		TxID    string `json:"txID"`
		RawData struct {
			Timestamp int64 `json:"timestamp"`
			Contract  []struct {
				Parameter struct {
					Value map[string]any `json:"value"`
				} `json:"parameter"`
			} `json:"contract"`
		} `json:"rawData"`
	}
	transfers := make([]models.Transfer, 0, len(raws))
	for _, raw := range raws {
		var tx tronTx
		if err := json.Unmarshal(raw, &tx); err != nil {
			continue
		}
		if len(tx.RawData.Contract) == 0 {
			continue
		}
		pv := tx.RawData.Contract[0].Parameter.Value
		// TRC10 asset transfers carry an asset name; skip them.
		if _, ok := pv["asset_name"]; ok {
			continue
		}
		if _, ok := pv["assetNameUtf8"]; ok {
			continue
		}
		transfers = append(transfers, models.Transfer{
			Txid:      tx.TxID,
			From:      firstString(pv, "ownerAddressBase58", "owner_address"),
			To:        firstString(pv, "toAddressBase58", "to_address"),
			Value:     t.codec.ToCanonical(numberString(pv["amount"]), chain, "", true),
			Timestamp: tx.RawData.Timestamp,
			Symbol:    "TRX",
		})
	}
	return transfers, nil
}

func (t *Tatum) tronTimestamp(ctx context.Context, txid string) int64 {
	var out struct {
		BlockTimeStamp int64 `json:"blockTimeStamp"`
	}
	u := t.TronGW + "/wallet/gettransactioninfobyid"
	if err := t.run.PostJSON(ctx, u, t.headers(), map[string]string{"value": txid}, &out); err != nil {
		return 0
	}
	return out.BlockTimeStamp
}

func (t *Tatum) bscHistory(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	pageSize := limit
	if pageSize > 50 {
		pageSize = 50
	}
	q := url.Values{}
	q.Set("chain", "bsc-mainnet")
	q.Set("addresses", address)
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("sort", "DESC")
	if contract != "" {
		q.Set("tokenAddress", contract)
		q.Set("transactionTypes", "fungible")
	} else {
		q.Set("transactionTypes", "native")
	}
	var out struct {
		Result []struct {
			Hash               string      `json:"hash"`
			Address            string      `json:"address"`
			CounterAddress     string      `json:"counterAddress"`
			Amount             json.Number `json:"amount"`
			Timestamp          int64       `json:"timestamp"`
			TransactionSubtype string      `json:"transactionSubtype"`
			TokenAddress       string      `json:"tokenAddress"`
			Asset              string      `json:"asset"`
		} `json:"result"`
	}
	u := fmt.Sprintf("%s/v4/data/transaction/history?%s", t.BaseURL, q.Encode())
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(out.Result))
	for _, tx := range out.Result {
		if contract != "" && !strings.EqualFold(tx.TokenAddress, contract) {
			continue
		}
		from, to := tx.Address, tx.CounterAddress
		if tx.TransactionSubtype == "incoming" {
			from, to = tx.CounterAddress, tx.Address
		}
		sym := tx.Asset
		if sym == "" {
			if contract != "" {
				sym = "TOKEN"
			} else {
				sym = "BSC"
			}
		}
		transfers = append(transfers, models.Transfer{
			Txid:      tx.Hash,
			From:      from,
			To:        to,
			Value:     t.codec.ToCanonical(strings.TrimPrefix(tx.Amount.String(), "-"), chain, contract, false),
			Timestamp: tx.Timestamp,
			Symbol:    sym,
		})
	}
	return transfers, nil
}

func (t *Tatum) bchHistory(ctx context.Context, chain, address string, limit int) ([]models.Transfer, error) {
	var hist []struct {
		TxHash string `json:"tx_hash"`
		Height int64  `json:"height"`
	}
	if err := t.run.RPC(ctx, t.RostrumURL, t.headers(), "blockchain.address.get_history", []any{address}, &hist); err != nil {
		return nil, err
	}
	// Electrum history arrives oldest-first; take the newest slice.
	if len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	for i, j := 0, len(hist)-1; i < j; i, j = i+1, j-1 {
		hist[i], hist[j] = hist[j], hist[i]
	}

	transfers := make([]models.Transfer, len(hist))
	valid := make([]bool, len(hist))
	g, gctx := errgroup.WithContext(ctx)
	for i := range hist {
		i := i
		g.Go(func() error {
			tr, err := t.bchTxDetail(gctx, chain, hist[i].TxHash, address)
			if err == nil {
				transfers[i] = *tr
				valid[i] = true
			}
			return nil
		})
	}
	g.Wait()

	out := make([]models.Transfer, 0, len(transfers))
	for i, tr := range transfers {
		if valid[i] {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (t *Tatum) bchTxDetail(ctx context.Context, chain, txHash, owner string) (*models.Transfer, error) {
	var tx struct {
		Vout []struct {
			Value        float64 `json:"value"`
			ScriptPubKey struct {
				Addresses []string `json:"addresses"`
			} `json:"scriptPubKey"`
		} `json:"vout"`
		Vin []struct {
			ValueCoin float64 `json:"value_coin"`
			ScriptSig struct {
				Asm string `json:"asm"`
			} `json:"scriptSig"`
		} `json:"vin"`
		Time int64 `json:"time"`
	}
	if err := t.run.RPC(ctx, t.RostrumURL, t.headers(), "blockchain.transaction.get", []any{txHash, true}, &tx); err != nil {
		return nil, err
	}

	cleanOwner := strings.ToLower(lastColonField(owner))
	var received, sent float64
	for _, vout := range tx.Vout {
		for _, a := range vout.ScriptPubKey.Addresses {
			if strings.ToLower(lastColonField(a)) == cleanOwner {
				received += vout.Value
				break
			}
		}
	}
	for _, vin := range tx.Vin {
		parts := strings.Fields(vin.ScriptSig.Asm)
		if len(parts) < 2 {
			continue
		}
		pubkey := parts[len(parts)-1]
		if len(pubkey) != 66 {
			continue
		}
		addr, err := amount.CashAddrFromPubkey(pubkey)
		if err != nil {
			continue
		}
		if strings.ToLower(lastColonField(addr)) == cleanOwner {
			sent += vin.ValueCoin
		}
	}

	net := received - sent
	from, to := owner, ""
	if net >= 0 {
		from, to = "", owner
	}
	ts := tx.Time
	if ts == 0 {
		ts = t.now().Unix()
	}
	if net < 0 {
		net = -net
	}
	return &models.Transfer{
		Txid:      txHash,
		From:      from,
		To:        to,
		Value:     t.codec.ToCanonical(strconv.FormatFloat(net, 'f', -1, 64), chain, "", false),
		Timestamp: ts * 1000,
		Symbol:    "BCH",
	}, nil
}

func (t *Tatum) tonHistory(ctx context.Context, chain, address string, limit int) ([]models.Transfer, error) {
	var out struct {
		Result []tonTx `json:"result"`
	}
	u := fmt.Sprintf("%s/getTransactions?address=%s&limit=%d", t.TonGW, url.QueryEscape(address), limit)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(out.Result))
	for _, tx := range out.Result {
		transfers = append(transfers, tonTransfer(tx, address, func(raw string) string {
			return t.codec.ToCanonical(raw, chain, "", true)
		}))
	}
	return transfers, nil
}

func (t *Tatum) solHistory(ctx context.Context, chain, address string, limit int) ([]models.Transfer, error) {
	var sigs []struct {
		Signature string `json:"signature"`
	}
	if err := t.run.RPC(ctx, t.SolanaGW, t.headers(), "getSignaturesForAddress",
		[]any{address, map[string]any{"limit": limit}}, &sigs); err != nil {
		return nil, err
	}

	type solTx struct {
		BlockTime int64 `json:"blockTime"`
		Meta      *struct {
			PreBalances  []int64 `json:"preBalances"`
			PostBalances []int64 `json:"postBalances"`
		} `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []json.RawMessage `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
	}

	details := make([]*solTx, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range sigs {
		i := i
		g.Go(func() error {
			var tx solTx
			err := t.run.RPC(gctx, t.SolanaGW, t.headers(), "getTransaction",
				[]any{sigs[i].Signature, map[string]any{"encoding": "json", "maxSupportedTransactionVersion": 0}}, &tx)
			if err == nil {
				details[i] = &tx
			}
			return nil
		})
	}
	g.Wait()

	transfers := make([]models.Transfer, 0, len(sigs))
	for i, tx := range details {
		if tx == nil || tx.Meta == nil {
			continue
		}
		keys := make([]string, len(tx.Transaction.Message.AccountKeys))
		for j, raw := range tx.Transaction.Message.AccountKeys {
			keys[j] = accountKey(raw)
		}
		myIdx := -1
		for j, k := range keys {
			if k == address {
				myIdx = j
				break
			}
		}
		if myIdx < 0 || myIdx >= len(tx.Meta.PreBalances) || myIdx >= len(tx.Meta.PostBalances) {
			continue
		}
		diff := tx.Meta.PostBalances[myIdx] - tx.Meta.PreBalances[myIdx]
		if diff == 0 {
			continue
		}
		from, to := "", address
		if diff < 0 {
			from, to = address, ""
			for j := range tx.Meta.PreBalances {
				if j == myIdx || j >= len(tx.Meta.PostBalances) {
					continue
				}
				if tx.Meta.PostBalances[j]-tx.Meta.PreBalances[j] > 0 {
					if j < len(keys) {
						to = keys[j]
					}
					break
				}
			}
			diff = -diff
		}
		ts := tx.BlockTime
		if ts == 0 {
			ts = t.now().Unix()
		}
		transfers = append(transfers, models.Transfer{
			Txid:      sigs[i].Signature,
			From:      from,
			To:        to,
			Value:     t.codec.ToCanonical(strconv.FormatInt(diff, 10), chain, "", true),
			Timestamp: ts * 1000,
			Symbol:    "SOL",
		})
	}
	return transfers, nil
}

func (t *Tatum) evmHistory(ctx context.Context, chain, tc, address, contract string, limit int) ([]models.Transfer, error) {
	var u string
	if contract != "" {
		u = fmt.Sprintf("%s/v3/blockchain/token/transaction/%s/%s/%s?pageSize=%d",
			t.BaseURL, tokenSymbol(chain), address, contract, limit)
	} else {
		u = fmt.Sprintf("%s/v3/%s/account/transaction/%s?pageSize=%d", t.BaseURL, tc, address, limit)
	}
	var raw []struct {
		Hash      string      `json:"hash"`
		From      string      `json:"from"`
		To        string      `json:"to"`
		Amount    json.Number `json:"amount"`
		Value     json.Number `json:"value"`
		Timestamp int64       `json:"timestamp"`
		Symbol    string      `json:"symbol"`
	}
	if err := t.run.GetJSON(ctx, u, t.headers(), &raw); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(raw))
	for _, tx := range raw {
		val := tx.Amount.String()
		if val == "" {
			val = tx.Value.String()
		}
		sym := tx.Symbol
		if sym == "" {
			sym = strings.ToUpper(chain)
		}
		transfers = append(transfers, models.Transfer{
			Txid:      tx.Hash,
			From:      tx.From,
			To:        tx.To,
			Value:     t.codec.ToCanonical(val, chain, contract, true),
			Timestamp: tx.Timestamp * 1000,
			Symbol:    sym,
		})
	}
	return transfers, nil
}

func (t *Tatum) btcHistory(ctx context.Context, chain, tc, address string, limit int) ([]models.Transfer, error) {
	u := fmt.Sprintf("%s/v3/%s/transaction/address/%s?pageSize=%d", t.BaseURL, tc, address, limit)
	var raw []struct {
		Hash    string `json:"hash"`
		Time    int64  `json:"time"`
		Outputs []struct {
			Address string      `json:"address"`
			Value   json.Number `json:"value"`
		} `json:"outputs"`
		Inputs []struct {
			Coin struct {
				Address string      `json:"address"`
				Value   json.Number `json:"value"`
			} `json:"coin"`
		} `json:"inputs"`
	}
	if err := t.run.GetJSON(ctx, u, t.headers(), &raw); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(raw))
	for _, tx := range raw {
		var received, sent float64
		for _, o := range tx.Outputs {
			if strings.Contains(o.Address, address) {
				v, _ := o.Value.Float64()
				received += v
			}
		}
		for _, in := range tx.Inputs {
			if strings.Contains(in.Coin.Address, address) {
				v, _ := in.Coin.Value.Float64()
				sent += v
			}
		}
		net := received - sent
		from, to := address, ""
		if net >= 0 {
			from, to = "", address
		}
		if net < 0 {
			net = -net
		}
		netStr := strconv.FormatFloat(net, 'f', -1, 64)
		var val string
		if tc == "dogecoin" || tc == "litecoin" {
			// These endpoints already report display units.
			val = t.codec.ToCanonical(netStr, chain, "", false)
		} else {
			val = t.codec.ToCanonical(netStr, chain, "", true)
		}
		ts := tx.Time
		if ts == 0 {
			ts = t.now().Unix()
		}
		transfers = append(transfers, models.Transfer{
			Txid:      tx.Hash,
			From:      from,
			To:        to,
			Value:     val,
			Timestamp: ts * 1000,
			Symbol:    strings.ToUpper(chain),
		})
	}
	return transfers, nil
}

// ---- utxo ----

func (t *Tatum) UTXOs(ctx context.Context, chain, address, totalValue string) ([]models.UTXO, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	switch tc {
	case "bitcoin", "litecoin", "dogecoin":
		v4Chain := tc
		if tc == "dogecoin" {
			v4Chain = "doge"
		}
		q := url.Values{}
		q.Set("chain", v4Chain)
		q.Set("totalValue", totalValue)
		q.Set("address", address)
		var raw []struct {
			Chain   string      `json:"chain"`
			Address string      `json:"address"`
			TxHash  string      `json:"txHash"`
			Index   int64       `json:"index"`
			Value   json.Number `json:"value"`
			Height  int64       `json:"height"`
		}
		u := fmt.Sprintf("%s/v4/data/utxos?%s", t.BaseURL, q.Encode())
		if err := t.run.GetJSON(ctx, u, t.headers(), &raw); err != nil {
			return nil, err
		}
		utxos := make([]models.UTXO, 0, len(raw))
		for _, item := range raw {
			utxos = append(utxos, models.UTXO{
				Chain:   item.Chain,
				Address: item.Address,
				TxHash:  item.TxHash,
				Index:   item.Index,
				Value:   item.Value.String(),
				Height:  item.Height,
			})
		}
		return utxos, nil
	case "bcash":
		var raw []struct {
			TxHash string      `json:"tx_hash"`
			TxPos  int64       `json:"tx_pos"`
			Value  json.Number `json:"value"`
			Height int64       `json:"height"`
		}
		if err := t.run.RPC(ctx, t.RostrumURL, t.headers(), "blockchain.address.listunspent", []any{address}, &raw); err != nil {
			return nil, err
		}
		utxos := make([]models.UTXO, 0, len(raw))
		for _, item := range raw {
			utxos = append(utxos, models.UTXO{
				Chain:   "bch-mainnet",
				Address: address,
				TxHash:  item.TxHash,
				Index:   item.TxPos,
				Value:   t.codec.ToCanonical(item.Value.String(), chain, "", true),
				Height:  item.Height,
			})
		}
		return utxos, nil
	default:
		return nil, fmt.Errorf("%w: utxo for %s", ErrUnsupported, chain)
	}
}

// ---- fee ----

func (t *Tatum) Fee(ctx context.Context, chain string) (*models.FeeQuote, error) {
	switch chain {
	case "bitcoin":
		var out struct {
			Fast   json.Number `json:"fast"`
			Medium json.Number `json:"medium"`
			Slow   json.Number `json:"slow"`
		}
		u := t.BaseURL + "/v3/blockchain/fee/BTC"
		if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
			return nil, err
		}
		return &models.FeeQuote{
			Slow:   out.Slow.String(),
			Medium: out.Medium.String(),
			Fast:   out.Fast.String(),
		}, nil
	case "bitcoincash":
		var perKB json.Number
		if err := t.run.RPC(ctx, t.RostrumURL, t.headers(), "blockchain.estimatefee", []any{2}, &perKB); err != nil {
			return nil, err
		}
		// Rostrum reports BCH/kB; -1 means no estimate available.
		sats := 1
		if v, err := perKB.Float64(); err == nil && v > 0 {
			if s := int(v * 100000); s > sats {
				sats = s
			}
		}
		fee := strconv.Itoa(sats)
		return &models.FeeQuote{Slow: fee, Medium: fee, Fast: fee}, nil
	default:
		return nil, fmt.Errorf("%w: fee for %s", ErrUnsupported, chain)
	}
}

// ---- nonce / gas ----

func (t *Tatum) Nonce(ctx context.Context, chain, address string) (int64, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return 0, err
	}
	var count json.Number
	u := fmt.Sprintf("%s/v3/%s/transaction/count/%s", t.BaseURL, tc, address)
	if err := t.run.GetJSON(ctx, u, t.headers(), &count); err != nil {
		return 0, err
	}
	n, err := count.Int64()
	if err != nil {
		return 0, fmt.Errorf("parse nonce %q: %w", count.String(), err)
	}
	return n, nil
}

func (t *Tatum) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	var out struct {
		Standard json.Number `json:"standard"`
	}
	priceGwei := 20.0
	u := fmt.Sprintf("%s/v3/%s/gas", t.BaseURL, tc)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err == nil {
		if v, err := out.Standard.Float64(); err == nil && v > 0 {
			priceGwei = v
		}
	}
	return &models.GasEstimate{
		GasPrice: strconv.FormatInt(int64(priceGwei*1e9), 10),
		GasLimit: strconv.Itoa(evmGasLimit(chain, contract)),
	}, nil
}

// evmGasLimit is the rule-of-thumb limit: plain transfer, token
// transfer, or an L2 native transfer that also pays L1 data fees.
func evmGasLimit(chain, contract string) int {
	if contract != "" {
		return 100000
	}
	switch chain {
	case "arbitrum", "optimism", "base":
		return 600000
	}
	return 21000
}

// ---- latest block ----

func (t *Tatum) LatestBlock(ctx context.Context, chain string) (map[string]any, error) {
	switch chain {
	case "tron":
		var out struct {
			BlockID     string `json:"blockID"`
			BlockHeader struct {
				RawData struct {
					Number         int64  `json:"number"`
					Timestamp      int64  `json:"timestamp"`
					ParentHash     string `json:"parentHash"`
					TxTrieRoot     string `json:"txTrieRoot"`
					WitnessAddress string `json:"witness_address"`
					Version        int64  `json:"version"`
				} `json:"raw_data"`
			} `json:"block_header"`
		}
		if err := t.run.GetJSON(ctx, t.TronGW+"/wallet/getnowblock", t.headers(), &out); err != nil {
			return nil, err
		}
		hdr := out.BlockHeader.RawData
		return map[string]any{
			"hash":           out.BlockID,
			"number":         hdr.Number,
			"timestamp":      hdr.Timestamp,
			"parentHash":     hdr.ParentHash,
			"txTrieRoot":     hdr.TxTrieRoot,
			"witnessAddress": hdr.WitnessAddress,
			"version":        hdr.Version,
		}, nil
	case "solana":
		var out struct {
			Context struct {
				Slot int64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Blockhash string `json:"blockhash"`
			} `json:"value"`
		}
		err := t.run.RPC(ctx, t.SolanaGW, t.headers(), "getLatestBlockhash",
			[]any{map[string]string{"commitment": "finalized"}}, &out)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"hash":      out.Value.Blockhash,
			"number":    out.Context.Slot,
			"timestamp": t.now().Unix(),
		}, nil
	default:
		return nil, fmt.Errorf("%w: latest block for %s", ErrUnsupported, chain)
	}
}

// ---- broadcast ----

func (t *Tatum) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return "", err
	}
	txData := txHex
	if chain != "tron" {
		txData = strings.TrimPrefix(txData, "0x")
	}
	if chain == "solana" {
		var sig string
		err := t.run.RPC(ctx, t.SolanaGW, t.headers(), "sendTransaction",
			[]any{txData, map[string]string{"encoding": "base58", "preflightCommitment": "processed"}}, &sig)
		if err != nil {
			return "", err
		}
		return sig, nil
	}
	var out struct {
		TxID string `json:"txId"`
	}
	u := fmt.Sprintf("%s/v3/%s/broadcast", t.BaseURL, tc)
	if err := t.run.PostJSON(ctx, u, t.headers(), map[string]string{"txData": txData}, &out); err != nil {
		return "", err
	}
	return out.TxID, nil
}

// ---- transaction detail ----

func (t *Tatum) Transaction(ctx context.Context, chain, txid string) (map[string]any, error) {
	tc, err := t.chain(chain)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	u := fmt.Sprintf("%s/v3/%s/transaction/%s", t.BaseURL, tc, txid)
	if err := t.run.GetJSON(ctx, u, t.headers(), &out); err != nil {
		var ue *upstream.Error
		if errors.As(err, &ue) && ue.Status == 404 {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// ---- tron account resource ----

func (t *Tatum) AccountResource(ctx context.Context, address, contract string) (map[string]any, error) {
	acc, err := t.tronAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	var energy int64
	if t.energy != nil {
		if e, err := t.energy.Energy(ctx, address); err == nil {
			energy = e
		}
	}
	out := map[string]any{
		"chain":        "tron",
		"address":      address,
		"contract":     contract,
		"createTime":   acc.CreateTime,
		"bandwidth":    acc.Bandwidth,
		"freeNetLimit": acc.FreeNet,
		"energy":       energy,
		"trc20":        []any{},
		"trc10":        []any{},
	}
	if contract != "" {
		raw := "0"
		for _, tok := range acc.TRC20 {
			if v, ok := tok[contract]; ok {
				raw = v
				break
			}
		}
		if raw != "0" {
			out["trc20"] = []any{map[string]string{
				contract: t.codec.ToCanonical(raw, "tron", contract, true),
			}}
		}
	} else {
		out["balance"] = t.codec.ToCanonical(acc.Balance.String(), "tron", "", true)
	}
	return out, nil
}

// ---- shared helpers ----

type tonTx struct {
	TransactionID struct {
		Hash string `json:"hash"`
	} `json:"transaction_id"`
	Utime int64 `json:"utime"`
	InMsg struct {
		Value  json.Number `json:"value"`
		Source string      `json:"source"`
	} `json:"in_msg"`
	OutMsgs []struct {
		Destination string      `json:"destination"`
		Value       json.Number `json:"value"`
	} `json:"out_msgs"`
}

// tonTransfer classifies a TON transaction relative to the owner: any
// outgoing message marks a send, an incoming value marks a receive, and
// everything else is a zero-value contract interaction.
func tonTransfer(tx tonTx, owner string, render func(raw string) string) models.Transfer {
	inValue, _ := tx.InMsg.Value.Int64()
	var outValue int64
	for _, m := range tx.OutMsgs {
		v, _ := m.Value.Int64()
		outValue += v
	}

	var from, to string
	var display int64
	switch {
	case len(tx.OutMsgs) > 0:
		from = owner
		to = tx.OutMsgs[0].Destination
		if to == "" {
			to = "Unknown"
		}
		display = outValue
	case inValue > 0:
		from = tx.InMsg.Source
		if from == "" {
			from = "External"
		}
		to = owner
		display = inValue
	default:
		from = owner
		to = tx.InMsg.Source
		if to == "" {
			to = "Contract"
		}
	}
	return models.Transfer{
		Txid:      tx.TransactionID.Hash,
		From:      from,
		To:        to,
		Value:     render(strconv.FormatInt(display, 10)),
		Timestamp: tx.Utime * 1000,
		Symbol:    "TON",
	}
}

func accountKey(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Pubkey
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func numberString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case json.Number:
		return n.String()
	default:
		return ""
	}
}

func lastColonField(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		return s[i+1:]
	}
	return s
}
