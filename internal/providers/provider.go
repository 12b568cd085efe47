// Package providers holds one adapter per upstream data source. Each
// adapter normalizes its vendor's wire format into the shared models and
// exposes only the capabilities that vendor actually has.
package providers

import (
	"context"
	"errors"

	"github.com/rawblock/chain-gateway/pkg/models"
)

// ErrUnsupported means the adapter has no implementation for the
// requested chain or operation; the router should not have sent it here.
var ErrUnsupported = errors.New("operation not supported by provider")

// ErrNotFound means the upstream answered but the entity does not exist.
var ErrNotFound = errors.New("not found")

type Provider interface {
	Name() string
}

type BalanceReader interface {
	Provider
	Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error)
}

type HistoryReader interface {
	Provider
	History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error)
}

type UTXOReader interface {
	Provider
	UTXOs(ctx context.Context, chain, address, totalValue string) ([]models.UTXO, error)
}

type FeeReader interface {
	Provider
	Fee(ctx context.Context, chain string) (*models.FeeQuote, error)
}

type NonceReader interface {
	Provider
	Nonce(ctx context.Context, chain, address string) (int64, error)
}

type GasEstimator interface {
	Provider
	EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error)
}

type SeqnoReader interface {
	Provider
	Seqno(ctx context.Context, address string) (*models.SeqnoResult, error)
}

type BlockReader interface {
	Provider
	LatestBlock(ctx context.Context, chain string) (map[string]any, error)
}

type Broadcaster interface {
	Provider
	Broadcast(ctx context.Context, chain, txHex string) (string, error)
}

type TxReader interface {
	Provider
	Transaction(ctx context.Context, chain, txid string) (map[string]any, error)
}

type ResourceReader interface {
	Provider
	AccountResource(ctx context.Context, address, contract string) (map[string]any, error)
}

// EnergyReader is the narrow dependency the Tron account-resource view
// needs beyond what its main data source returns.
type EnergyReader interface {
	Energy(ctx context.Context, address string) (int64, error)
}
