package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// TonCenter is the authoritative source for TON wallet state. A wrong
// seqno burns the user's transfer, so seqno failures surface as errors
// instead of defaulting to zero.
type TonCenter struct {
	run    *upstream.Runner
	codec  *amount.Codec
	apiKey string

	BaseURL string
}

func NewTonCenter(run *upstream.Runner, codec *amount.Codec, apiKey string) *TonCenter {
	return &TonCenter{
		run:     run,
		codec:   codec,
		apiKey:  apiKey,
		BaseURL: "https://toncenter.com/api/v2",
	}
}

func (t *TonCenter) Name() string { return "toncenter" }

func (t *TonCenter) headers() map[string]string {
	return map[string]string{"X-API-Key": t.apiKey}
}

type tcEnvelope struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (t *TonCenter) get(ctx context.Context, path string, q url.Values, out any) error {
	var env tcEnvelope
	if err := t.run.GetJSON(ctx, t.BaseURL+path+"?"+q.Encode(), t.headers(), &env); err != nil {
		return err
	}
	return t.unwrap(env, out)
}

func (t *TonCenter) post(ctx context.Context, path string, body, out any) error {
	var env tcEnvelope
	if err := t.run.PostJSON(ctx, t.BaseURL+path, t.headers(), body, &env); err != nil {
		return err
	}
	return t.unwrap(env, out)
}

func (t *TonCenter) unwrap(env tcEnvelope, out any) error {
	if !env.OK {
		return fmt.Errorf("toncenter: %s", env.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return &upstream.Error{Outcome: upstream.Fatal, Err: err}
	}
	return nil
}

func (t *TonCenter) Seqno(ctx context.Context, address string) (*models.SeqnoResult, error) {
	var info struct {
		State   string      `json:"state"`
		Balance json.Number `json:"balance"`
	}
	q := url.Values{}
	q.Set("address", address)
	if err := t.get(ctx, "/getAddressInformation", q, &info); err != nil {
		return nil, err
	}

	result := &models.SeqnoResult{
		Seqno:        0,
		IsDeployed:   false,
		Balance:      t.codec.ToCanonical(info.Balance.String(), "ton", "", true),
		EstimatedFee: "0.01",
	}
	if info.State != "active" {
		// Uninitialized or frozen wallets have no seqno on chain.
		return result, nil
	}

	result.IsDeployed = true
	var run struct {
		Stack [][2]json.RawMessage `json:"stack"`
	}
	body := map[string]any{"address": address, "method": "seqno", "stack": []any{}}
	if err := t.post(ctx, "/runGetMethod", body, &run); err != nil {
		// An active wallet must yield a seqno; a zero fallback would
		// produce an unsignable transaction.
		return nil, fmt.Errorf("seqno for active wallet %s: %w", address, err)
	}
	if len(run.Stack) == 0 {
		return nil, fmt.Errorf("seqno for active wallet %s: empty stack", address)
	}
	var kind, value string
	if err := json.Unmarshal(run.Stack[0][0], &kind); err != nil || kind != "num" {
		return nil, fmt.Errorf("seqno for active wallet %s: unexpected stack entry", address)
	}
	if err := json.Unmarshal(run.Stack[0][1], &value); err != nil {
		return nil, fmt.Errorf("seqno for active wallet %s: unexpected stack value", address)
	}
	seqno, err := parseTonNum(value)
	if err != nil {
		return nil, fmt.Errorf("seqno for active wallet %s: %w", address, err)
	}
	result.Seqno = seqno
	return result, nil
}

func parseTonNum(s string) (int64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "-0x") {
		neg := strings.HasPrefix(s, "-")
		v, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimPrefix(s, "-"), "0x"), 16, 64)
		if neg {
			v = -v
		}
		return v, err
	}
	return strconv.ParseInt(s, 10, 64)
}

func (t *TonCenter) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	var txs []tonTx
	q := url.Values{}
	q.Set("address", address)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("archival", "true")
	if err := t.get(ctx, "/getTransactions", q, &txs); err != nil {
		return nil, err
	}
	transfers := make([]models.Transfer, 0, len(txs))
	for _, tx := range txs {
		tr := tonTransfer(tx, address, func(raw string) string {
			return t.codec.ToCanonical(raw, chain, "", true)
		})
		// Zero-value interactions are inbound here: deployments and
		// bare messages arrive as in_msgs without value.
		if len(tx.OutMsgs) == 0 {
			if v, _ := tx.InMsg.Value.Int64(); v == 0 {
				from := tx.InMsg.Source
				if from == "" {
					from = "Unknown"
				}
				tr.From, tr.To = from, address
			}
		}
		transfers = append(transfers, tr)
	}
	return transfers, nil
}

func (t *TonCenter) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	var out struct {
		Hash string `json:"hash"`
	}
	if err := t.post(ctx, "/sendBocReturnHash", map[string]string{"boc": txHex}, &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", fmt.Errorf("toncenter broadcast returned no hash")
	}
	return out.Hash, nil
}
