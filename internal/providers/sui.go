package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

const suiCoinType = "0x2::sui::SUI"

// Sui talks to the public fullnode. Histories need two queries because
// the node can only filter by sender or recipient, not both.
type Sui struct {
	run   *upstream.Runner
	codec *amount.Codec

	NodeURL string
	now     func() time.Time
}

func NewSui(run *upstream.Runner, codec *amount.Codec) *Sui {
	return &Sui{
		run:     run,
		codec:   codec,
		NodeURL: "https://fullnode.mainnet.sui.io",
		now:     time.Now,
	}
}

func (s *Sui) Name() string { return "sui-rpc" }

func (s *Sui) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	var out struct {
		TotalBalance json.Number `json:"totalBalance"`
	}
	if err := s.run.RPC(ctx, s.NodeURL, nil, "suix_getBalance", []any{address, suiCoinType}, &out); err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: s.codec.ToCanonical(out.TotalBalance.String(), chain, "", true)}, nil
}

type suiTxBlock struct {
	Digest      string      `json:"digest"`
	TimestampMs json.Number `json:"timestampMs"`
	Transaction struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
	BalanceChanges []struct {
		Owner struct {
			AddressOwner string `json:"AddressOwner"`
		} `json:"owner"`
		CoinType string      `json:"coinType"`
		Amount   json.Number `json:"amount"`
	} `json:"balanceChanges"`
}

func (s *Sui) queryTxBlocks(ctx context.Context, filter map[string]string, limit int) ([]suiTxBlock, error) {
	query := map[string]any{
		"filter": filter,
		"options": map[string]bool{
			"showBalanceChanges": true,
			"showInput":          true,
			"showEffects":        true,
		},
	}
	var out struct {
		Data []suiTxBlock `json:"data"`
	}
	err := s.run.RPC(ctx, s.NodeURL, nil, "suix_queryTransactionBlocks",
		[]any{query, nil, limit, true}, &out)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (s *Sui) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	var sent, received []suiTxBlock
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sent, err = s.queryTxBlocks(gctx, map[string]string{"FromAddress": address}, limit)
		return err
	})
	g.Go(func() error {
		var err error
		received, err = s.queryTxBlocks(gctx, map[string]string{"ToAddress": address}, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	blocks := make([]suiTxBlock, 0, len(sent)+len(received))
	for _, b := range append(sent, received...) {
		if b.Digest == "" || seen[b.Digest] {
			continue
		}
		seen[b.Digest] = true
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool {
		ti, _ := blocks[i].TimestampMs.Int64()
		tj, _ := blocks[j].TimestampMs.Int64()
		return ti > tj
	})
	if len(blocks) > limit {
		blocks = blocks[:limit]
	}

	transfers := make([]models.Transfer, 0, len(blocks))
	for _, b := range blocks {
		sender := b.Transaction.Data.Sender
		var myChange int64
		var candidates []string
		for _, ch := range b.BalanceChanges {
			if ch.CoinType != suiCoinType {
				continue
			}
			amt, err := ch.Amount.Int64()
			if err != nil {
				continue
			}
			owner := ch.Owner.AddressOwner
			if owner == address {
				myChange += amt
			} else if amt > 0 && owner != sender {
				candidates = append(candidates, owner)
			}
		}

		var from, to string
		value := myChange
		switch {
		case myChange > 0:
			from, to = sender, address
		case myChange < 0:
			from = address
			if len(candidates) > 0 {
				to = candidates[0]
			} else {
				to = "Contract/Gas"
			}
			value = -myChange
		default:
			// Gas-only interaction initiated by the owner.
			if sender != address {
				continue
			}
			from, to = address, "Contract/Gas"
			value = 0
		}

		ts, _ := b.TimestampMs.Int64()
		if ts == 0 {
			ts = s.now().UnixMilli()
		}
		transfers = append(transfers, models.Transfer{
			Txid:      b.Digest,
			From:      from,
			To:        to,
			Value:     s.codec.ToCanonical(strconv.FormatInt(value, 10), chain, "", true),
			Timestamp: ts,
			Symbol:    "SUI",
		})
	}
	return transfers, nil
}

func (s *Sui) Fee(ctx context.Context, chain string) (*models.FeeQuote, error) {
	var price json.Number
	mist := "1000"
	if err := s.run.RPC(ctx, s.NodeURL, nil, "suix_getReferenceGasPrice", []any{}, &price); err == nil && price.String() != "" {
		mist = price.String()
	}
	return &models.FeeQuote{Slow: mist, Medium: mist, Fast: mist}, nil
}

func (s *Sui) UTXOs(ctx context.Context, chain, address, totalValue string) ([]models.UTXO, error) {
	var out struct {
		Data []struct {
			CoinObjectID string      `json:"coinObjectId"`
			Version      string      `json:"version"`
			Digest       string      `json:"digest"`
			Balance      json.Number `json:"balance"`
		} `json:"data"`
	}
	if err := s.run.RPC(ctx, s.NodeURL, nil, "suix_getCoins", []any{address, suiCoinType, nil, nil}, &out); err != nil {
		return nil, err
	}
	utxos := make([]models.UTXO, 0, len(out.Data))
	for _, coin := range out.Data {
		utxos = append(utxos, models.UTXO{
			Chain:        "sui-mainnet",
			Address:      address,
			TxHash:       coin.Digest,
			Index:        0,
			Value:        s.codec.ToCanonical(coin.Balance.String(), chain, "", true),
			ObjectID:     coin.CoinObjectID,
			Version:      coin.Version,
			ObjectDigest: coin.Digest,
		})
	}
	return utxos, nil
}

// Broadcast expects the signed payload as a JSON document holding the
// base64 transaction bytes and signature.
func (s *Sui) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	var payload struct {
		TxBytes   string `json:"txBytes"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(txHex), &payload); err != nil {
		return "", fmt.Errorf("parse sui broadcast payload: %w", err)
	}
	if payload.TxBytes == "" || payload.Signature == "" {
		return "", fmt.Errorf("sui broadcast payload missing txBytes or signature")
	}
	var out struct {
		Digest string `json:"digest"`
	}
	err := s.run.RPC(ctx, s.NodeURL, nil, "sui_executeTransactionBlock",
		[]any{payload.TxBytes, []string{payload.Signature}, map[string]bool{"showEffects": true}, "WaitForLocalExecution"}, &out)
	if err != nil {
		return "", err
	}
	return out.Digest, nil
}
