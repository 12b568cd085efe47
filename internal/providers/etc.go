package providers

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/params"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

const etcGasFloorWei = 1 * params.GWei

// ETC runs against the Rivet public node, with Blockscout for history.
type ETC struct {
	evmClient
	codec *amount.Codec

	ScanURL string
}

func NewETC(run *upstream.Runner, codec *amount.Codec) *ETC {
	return &ETC{
		evmClient: evmClient{run: run, url: "https://etc.rivet.link"},
		codec:     codec,
		ScanURL:   "https://etc.blockscout.com/api",
	}
}

func (e *ETC) Name() string { return "etc-rpc" }

func (e *ETC) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	wei, err := e.bigInt(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: e.codec.ToCanonical(wei.String(), chain, "", true)}, nil
}

func (e *ETC) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	return scanHistory(ctx, e.run, e.codec, chain, address, contract, limit, scanOptions{
		baseURL:      e.ScanURL,
		nativeSymbol: "ETC",
		requireHash:  true,
	})
}

// Fee spreads the node's current gas price into three tiers; ETC has
// no fee market so a small multiplier is enough headroom.
func (e *ETC) Fee(ctx context.Context, chain string) (*models.FeeQuote, error) {
	current := new(big.Int)
	current.SetString(e.gasPrice(ctx, etcGasFloorWei), 10)

	scale := func(num, den int64) string {
		v := new(big.Int).Mul(current, big.NewInt(num))
		return v.Div(v, big.NewInt(den)).String()
	}
	return &models.FeeQuote{
		Slow:   current.String(),
		Medium: scale(11, 10),
		Fast:   scale(12, 10),
	}, nil
}

func (e *ETC) Nonce(ctx context.Context, chain, address string) (int64, error) {
	return e.nonce(ctx, address, "pending")
}

func (e *ETC) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	limit := 21000
	if contract != "" {
		limit = 100000
	}
	return &models.GasEstimate{
		GasPrice: e.gasPrice(ctx, etcGasFloorWei),
		GasLimit: strconv.Itoa(limit),
	}, nil
}

func (e *ETC) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	return e.sendRaw(ctx, txHex)
}
