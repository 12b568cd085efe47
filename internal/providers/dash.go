package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// Dash uses the public Insight explorer API.
type Dash struct {
	run   *upstream.Runner
	codec *amount.Codec

	BaseURL string
	now     func() time.Time
}

func NewDash(run *upstream.Runner, codec *amount.Codec) *Dash {
	return &Dash{
		run:     run,
		codec:   codec,
		BaseURL: "https://insight.dash.org/insight-api",
		now:     time.Now,
	}
}

func (d *Dash) Name() string { return "dash-insight" }

func (d *Dash) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	var out struct {
		BalanceSat            int64 `json:"balanceSat"`
		UnconfirmedBalanceSat int64 `json:"unconfirmedBalanceSat"`
	}
	u := fmt.Sprintf("%s/addr/%s", d.BaseURL, url.PathEscape(address))
	if err := d.run.GetJSON(ctx, u, nil, &out); err != nil {
		return nil, err
	}
	// Unconfirmed can be negative while a spend is in the mempool.
	sats := out.BalanceSat + out.UnconfirmedBalanceSat
	if sats < 0 {
		sats = 0
	}
	return &models.BalanceResult{Balance: d.codec.ToCanonical(strconv.FormatInt(sats, 10), chain, "", true)}, nil
}

func (d *Dash) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	var out struct {
		Txs []struct {
			Txid string `json:"txid"`
			Time int64  `json:"time"`
			Vin  []struct {
				Addr string `json:"addr"`
			} `json:"vin"`
			Vout []struct {
				Value        json.Number `json:"value"`
				ScriptPubKey struct {
					Addresses []string `json:"addresses"`
				} `json:"scriptPubKey"`
			} `json:"vout"`
		} `json:"txs"`
	}
	u := fmt.Sprintf("%s/txs?address=%s", d.BaseURL, url.QueryEscape(address))
	if err := d.run.GetJSON(ctx, u, nil, &out); err != nil {
		return nil, err
	}

	txs := out.Txs
	if len(txs) > limit {
		txs = txs[:limit]
	}
	transfers := make([]models.Transfer, 0, len(txs))
	for _, tx := range txs {
		isSender := false
		for _, vin := range tx.Vin {
			if vin.Addr == address {
				isSender = true
				break
			}
		}

		var dashValue float64
		var from, to string
		if isSender {
			from = address
			for _, vout := range tx.Vout {
				mine := false
				for _, a := range vout.ScriptPubKey.Addresses {
					if a == address {
						mine = true
						break
					}
				}
				if !mine {
					v, _ := vout.Value.Float64()
					dashValue += v
					if to == "" && len(vout.ScriptPubKey.Addresses) > 0 {
						to = vout.ScriptPubKey.Addresses[0]
					}
				}
			}
		} else {
			to = address
			if len(tx.Vin) > 0 {
				from = tx.Vin[0].Addr
			}
			for _, vout := range tx.Vout {
				for _, a := range vout.ScriptPubKey.Addresses {
					if a == address {
						v, _ := vout.Value.Float64()
						dashValue += v
						break
					}
				}
			}
		}

		sats := int64(math.Round(dashValue * 1e8))
		ts := tx.Time
		if ts == 0 {
			ts = d.now().Unix()
		}
		transfers = append(transfers, models.Transfer{
			Txid:      tx.Txid,
			From:      from,
			To:        to,
			Value:     d.codec.ToCanonical(strconv.FormatInt(sats, 10), chain, "", true),
			Timestamp: ts * 1000,
			Symbol:    "DASH",
		})
	}
	return transfers, nil
}

func (d *Dash) UTXOs(ctx context.Context, chain, address, totalValue string) ([]models.UTXO, error) {
	var raw []struct {
		Txid         string `json:"txid"`
		Vout         int64  `json:"vout"`
		Satoshis     int64  `json:"satoshis"`
		ScriptPubKey string `json:"scriptPubKey"`
		Height       int64  `json:"height"`
	}
	u := fmt.Sprintf("%s/addr/%s/utxo", d.BaseURL, url.PathEscape(address))
	if err := d.run.GetJSON(ctx, u, nil, &raw); err != nil {
		return nil, err
	}
	utxos := make([]models.UTXO, 0, len(raw))
	for _, item := range raw {
		utxos = append(utxos, models.UTXO{
			Chain:   "dash-mainnet",
			Address: address,
			TxHash:  item.Txid,
			Index:   item.Vout,
			Value:   d.codec.ToCanonical(strconv.FormatInt(item.Satoshis, 10), chain, "", true),
			Script:  item.ScriptPubKey,
			Height:  item.Height,
		})
	}
	return utxos, nil
}

func (d *Dash) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	var out struct {
		Txid string `json:"txid"`
	}
	body := map[string]string{"rawtx": strings.TrimPrefix(txHex, "0x")}
	if err := d.run.PostJSON(ctx, d.BaseURL+"/tx/send", nil, body, &out); err != nil {
		return "", err
	}
	return out.Txid, nil
}
