package providers

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/params"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/upstream"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// Avalanche enforces a 25 nAVAX minimum base fee.
const avaxGasFloorWei = 25 * params.GWei

// Avax uses the public C-Chain RPC node plus Routescan's
// etherscan-compatible API for history.
type Avax struct {
	evmClient
	codec *amount.Codec

	ScanURL string
}

func NewAvax(run *upstream.Runner, codec *amount.Codec) *Avax {
	return &Avax{
		evmClient: evmClient{run: run, url: "https://api.avax.network/ext/bc/C/rpc"},
		codec:     codec,
		ScanURL:   "https://api.routescan.io/v2/network/mainnet/evm/43114/etherscan/api",
	}
}

func (a *Avax) Name() string { return "avax-rpc" }

func (a *Avax) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	wei, err := a.bigInt(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	return &models.BalanceResult{Balance: a.codec.ToCanonical(wei.String(), chain, "", true)}, nil
}

func (a *Avax) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	return scanHistory(ctx, a.run, a.codec, chain, address, contract, limit, scanOptions{
		baseURL:      a.ScanURL,
		nativeSymbol: "AVAX",
		stripMinus:   true,
	})
}

func (a *Avax) Nonce(ctx context.Context, chain, address string) (int64, error) {
	return a.nonce(ctx, address, "pending")
}

func (a *Avax) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	limit := 21000
	if contract != "" {
		limit = 100000
	}
	return &models.GasEstimate{
		GasPrice: a.gasPrice(ctx, avaxGasFloorWei),
		GasLimit: strconv.Itoa(limit),
	}, nil
}

func (a *Avax) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	return a.sendRaw(ctx, txHex)
}
