// Package gateway is the service layer between the HTTP handlers and
// the provider adapters. It validates requests against the registry,
// resolves the provider route, and applies the few cross-provider
// policies (balance failover, default fee quotes) that no single
// adapter owns.
package gateway

import (
	"context"
	"errors"
	"log"

	"github.com/rawblock/chain-gateway/internal/providers"
	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/router"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// ErrBadRequest marks a request the client can fix: an unsupported
// chain key or a contract outside the whitelist.
var ErrBadRequest = errors.New("bad request")

type Service struct {
	reg    *registry.Registry
	routes *router.Router
}

func New(reg *registry.Registry, routes *router.Router) *Service {
	return &Service{reg: reg, routes: routes}
}

// validate checks the chain key and, when present, the contract against
// the embedded registry. Everything the gateway serves goes through
// this gate first.
func (s *Service) validate(chain, contract string) error {
	if _, ok := s.reg.CoinByID(chain); !ok {
		return ErrBadRequest
	}
	if contract != "" {
		if _, ok := s.reg.TokenByContract(contract); !ok {
			return ErrBadRequest
		}
	}
	return nil
}

// Balance is the one operation with failover: TON in particular has two
// viable sources, so candidates are tried in route order until one
// answers.
func (s *Service) Balance(ctx context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	if err := s.validate(chain, contract); err != nil {
		return nil, err
	}
	var lastErr error = providers.ErrUnsupported
	for _, p := range s.routes.Route(router.OpBalance, chain) {
		reader, ok := p.(providers.BalanceReader)
		if !ok {
			continue
		}
		res, err := reader.Balance(ctx, chain, address, contract)
		if err == nil {
			return res, nil
		}
		log.Printf("[GATEWAY] balance %s via %s failed: %v", chain, p.Name(), err)
		lastErr = err
	}
	return nil, lastErr
}

func (s *Service) History(ctx context.Context, chain, address, contract string, limit int) ([]models.Transfer, error) {
	if err := s.validate(chain, contract); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpHistory, chain) {
		if reader, ok := p.(providers.HistoryReader); ok {
			return reader.History(ctx, chain, address, contract, limit)
		}
	}
	return nil, providers.ErrUnsupported
}

func (s *Service) UTXOs(ctx context.Context, chain, address, totalValue string) ([]models.UTXO, error) {
	if err := s.validate(chain, ""); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpUTXO, chain) {
		if reader, ok := p.(providers.UTXOReader); ok {
			return reader.UTXOs(ctx, chain, address, totalValue)
		}
	}
	return nil, providers.ErrUnsupported
}

// Fee returns an empty quote for chains without a routed fee source so
// clients get a uniform shape instead of an error.
func (s *Service) Fee(ctx context.Context, chain string) (*models.FeeQuote, error) {
	if err := s.validate(chain, ""); err != nil {
		return nil, err
	}
	list := s.routes.Route(router.OpFee, chain)
	if len(list) == 0 {
		return &models.FeeQuote{}, nil
	}
	for _, p := range list {
		if reader, ok := p.(providers.FeeReader); ok {
			return reader.Fee(ctx, chain)
		}
	}
	return nil, providers.ErrUnsupported
}

func (s *Service) Nonce(ctx context.Context, chain, address string) (int64, error) {
	if err := s.validate(chain, ""); err != nil {
		return 0, err
	}
	for _, p := range s.routes.Route(router.OpNonce, chain) {
		if reader, ok := p.(providers.NonceReader); ok {
			return reader.Nonce(ctx, chain, address)
		}
	}
	return 0, providers.ErrUnsupported
}

func (s *Service) EstimateGas(ctx context.Context, chain, contract string) (*models.GasEstimate, error) {
	if err := s.validate(chain, contract); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpGas, chain) {
		if est, ok := p.(providers.GasEstimator); ok {
			return est.EstimateGas(ctx, chain, contract)
		}
	}
	return nil, providers.ErrUnsupported
}

func (s *Service) Seqno(ctx context.Context, chain, address string) (*models.SeqnoResult, error) {
	if err := s.validate(chain, ""); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpSeqno, chain) {
		if reader, ok := p.(providers.SeqnoReader); ok {
			return reader.Seqno(ctx, address)
		}
	}
	return nil, providers.ErrUnsupported
}

func (s *Service) LatestBlock(ctx context.Context, chain string) (map[string]any, error) {
	if err := s.validate(chain, ""); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpBlock, chain) {
		if reader, ok := p.(providers.BlockReader); ok {
			return reader.LatestBlock(ctx, chain)
		}
	}
	return nil, providers.ErrUnsupported
}

func (s *Service) Broadcast(ctx context.Context, chain, txHex string) (string, error) {
	if err := s.validate(chain, ""); err != nil {
		return "", err
	}
	for _, p := range s.routes.Route(router.OpBroadcast, chain) {
		if b, ok := p.(providers.Broadcaster); ok {
			txid, err := b.Broadcast(ctx, chain, txHex)
			if err != nil {
				log.Printf("[GATEWAY] broadcast %s via %s failed: %v", chain, p.Name(), err)
			}
			return txid, err
		}
	}
	return "", providers.ErrUnsupported
}

func (s *Service) Transaction(ctx context.Context, chain, txid string) (map[string]any, error) {
	if err := s.validate(chain, ""); err != nil {
		return nil, err
	}
	for _, p := range s.routes.Route(router.OpTxDetail, chain) {
		if reader, ok := p.(providers.TxReader); ok {
			return reader.Transaction(ctx, chain, txid)
		}
	}
	return nil, providers.ErrUnsupported
}

// Tron resource fee constants, used by wallets to price transfers
// before building them. Values are TRX except the energy count.
const (
	feeBandwidth    = "0.001"
	feeEnergy       = "0.00021"
	feeActivation   = "1"
	feeEnergyNeeded = 65000
)

// AccountResource serves the chain resource view. Tron gets the full
// bandwidth/energy record from its resource source; every other chain
// gets its balance record. The per-unit fee constants ride along on
// all chains so clients need no second call.
func (s *Service) AccountResource(ctx context.Context, chain, address, contract string) (map[string]any, error) {
	if err := s.validate(chain, contract); err != nil {
		return nil, err
	}
	var res map[string]any
	if chain == "tron" {
		for _, p := range s.routes.Route(router.OpBalance, chain) {
			reader, ok := p.(providers.ResourceReader)
			if !ok {
				continue
			}
			r, err := reader.AccountResource(ctx, address, contract)
			if err != nil {
				return nil, err
			}
			res = r
			break
		}
	}
	if res == nil {
		bal, err := s.Balance(ctx, chain, address, contract)
		if err != nil {
			return nil, err
		}
		res = map[string]any{
			"chain":    chain,
			"address":  address,
			"contract": contract,
			"balance":  bal.Balance,
		}
		for k, v := range bal.Extra {
			res[k] = v
		}
	}
	res["feeBandwidth"] = feeBandwidth
	res["feeEnergy"] = feeEnergy
	res["feeActivation"] = feeActivation
	res["feeEnergyNeeded"] = feeEnergyNeeded
	return res, nil
}
