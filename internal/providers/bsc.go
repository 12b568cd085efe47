package providers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

const bscGasFloorWei = 3 * params.GWei

// BSC queries the public BNB Smart Chain dataseed node directly and
// BscScan for history, avoiding Tatum's metered quota for the heaviest
// chain.
type BSC struct {
	evmClient
	codec *amount.Codec

	ScanURL string
}

func NewBSC(run *upstream.Runner, codec *amount.Codec) *BSC {
	return &BSC{
		evmClient: evmClient{run: run, url: "https://bsc-dataseed.binance.org"},
		codec:     codec,
		ScanURL:   "https://api.bscscan.com/api",
	}
}

func (b *BSC) Name() string { return "bsc-rpc" }

func (b *BSC) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	if contract != "" {
		data := erc20BalanceData(address)
		out, err := b.hexString(ctx, "eth_call", map[string]string{"to": contract, "data": data}, "latest")
		if err != nil {
			return nil, err
		}
		if out == "" || out == "0x" {
			return &models.BalanceResult{Balance: amount.Unknown}, nil
		}
		v, err := hexutil.DecodeBig(shortenHexWord(out))
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", out, err)
		}
		return &models.BalanceResult{Balance: b.codec.ToCanonical(v.String(), chain, contract, true)}, nil
	}
	wei, err := b.bigInt(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: b.codec.ToCanonical(wei.String(), chain, "", true)}, nil
}

func (b *BSC) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	return scanHistory(ctx, b.run, b.codec, chain, address, contract, limit, scanOptions{
		baseURL:      b.ScanURL,
		nativeSymbol: "BNB",
		skipErrored:  true,
	})
}

func (b *BSC) Nonce(ctx context.Context, chain, address string) (int64, error) {
	return b.nonce(ctx, address, "pending")
}

func (b *BSC) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	limit := 21000
	if contract != "" {
		limit = 100000
	}
	return &models.GasEstimate{
		GasPrice: b.gasPrice(ctx, bscGasFloorWei),
		GasLimit: strconv.Itoa(limit),
	}, nil
}

func (b *BSC) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	return b.sendRaw(ctx, txHex)
}

// shortenHexWord strips the leading zeros of a 32-byte ABI word so
// hexutil accepts it.
func shortenHexWord(hex string) string {
	s := strings.TrimPrefix(hex, "0x")
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	return "0x" + s
}
