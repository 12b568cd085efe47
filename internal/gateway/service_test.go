package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/rawblock/chain-gateway/internal/providers"
	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/router"
	"github.com/rawblock/chain-gateway/pkg/models"
)

// stub implements every provider capability through function fields so
// each test wires only what it needs.
type stub struct {
	name        string
	balanceFn   func(chain, address, contract string) (*models.BalanceResult, error)
	feeFn       func(chain string) (*models.FeeQuote, error)
	broadcastFn func(chain, txHex string) (string, error)
	resourceFn  func(address, contract string) (map[string]any, error)
	txFn        func(chain, txid string) (map[string]any, error)
}

func (s *stub) Name() string { return s.name }

func (s *stub) Balance(_ context.Context, chain, address, contract string) (*models.BalanceResult, error) {
	if s.balanceFn == nil {
		return nil, providers.ErrUnsupported
	}
	return s.balanceFn(chain, address, contract)
}

func (s *stub) Fee(_ context.Context, chain string) (*models.FeeQuote, error) {
	if s.feeFn == nil {
		return nil, providers.ErrUnsupported
	}
	return s.feeFn(chain)
}

func (s *stub) Broadcast(_ context.Context, chain, txHex string) (string, error) {
	if s.broadcastFn == nil {
		return "", providers.ErrUnsupported
	}
	return s.broadcastFn(chain, txHex)
}

func (s *stub) AccountResource(_ context.Context, address, contract string) (map[string]any, error) {
	if s.resourceFn == nil {
		return nil, providers.ErrUnsupported
	}
	return s.resourceFn(address, contract)
}

func (s *stub) Transaction(_ context.Context, chain, txid string) (map[string]any, error) {
	if s.txFn == nil {
		return nil, providers.ErrUnsupported
	}
	return s.txFn(chain, txid)
}

func newService(t *testing.T, p router.Providers) *Service {
	t.Helper()
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	fill := &stub{name: "fill"}
	if p.Tatum == nil {
		p.Tatum = fill
	}
	if p.Ankr == nil {
		p.Ankr = fill
	}
	if p.Etherscan == nil {
		p.Etherscan = fill
	}
	if p.BSC == nil {
		p.BSC = fill
	}
	if p.Avax == nil {
		p.Avax = fill
	}
	if p.ETC == nil {
		p.ETC = fill
	}
	if p.Sui == nil {
		p.Sui = fill
	}
	if p.Dash == nil {
		p.Dash = fill
	}
	if p.TonCenter == nil {
		p.TonCenter = fill
	}
	return New(reg, router.New(p))
}

func TestValidateRejectsUnknownChain(t *testing.T) {
	s := newService(t, router.Providers{})
	if _, err := s.Balance(context.Background(), "notachain", "addr", ""); !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
	if _, err := s.Fee(context.Background(), "BITCOIN2"); !errors.Is(err, ErrBadRequest) {
		t.Errorf("fee err = %v, want ErrBadRequest", err)
	}
}

func TestValidateRejectsOffWhitelistContract(t *testing.T) {
	s := newService(t, router.Providers{})
	_, err := s.Balance(context.Background(), "ethereum", "0xme", "0x0000000000000000000000000000000000000bad")
	if !errors.Is(err, ErrBadRequest) {
		t.Errorf("err = %v, want ErrBadRequest", err)
	}
}

func TestBalanceFailover(t *testing.T) {
	primary := &stub{name: "ankr", balanceFn: func(string, string, string) (*models.BalanceResult, error) {
		return nil, errors.New("upstream down")
	}}
	backup := &stub{name: "tatum", balanceFn: func(string, string, string) (*models.BalanceResult, error) {
		return &models.BalanceResult{Balance: "1.500000"}, nil
	}}
	s := newService(t, router.Providers{Ankr: primary, Tatum: backup})

	res, err := s.Balance(context.Background(), "ton", "EQabc", "")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Balance != "1.500000" {
		t.Errorf("balance = %q", res.Balance)
	}
}

func TestBalanceAllCandidatesFail(t *testing.T) {
	down := errors.New("upstream down")
	p := &stub{name: "p", balanceFn: func(string, string, string) (*models.BalanceResult, error) {
		return nil, down
	}}
	s := newService(t, router.Providers{Ankr: p, Tatum: p})

	if _, err := s.Balance(context.Background(), "ton", "EQabc", ""); !errors.Is(err, down) {
		t.Errorf("err = %v, want last provider error", err)
	}
}

func TestFeeUnroutedChainGetsEmptyQuote(t *testing.T) {
	called := false
	p := &stub{name: "tatum", feeFn: func(string) (*models.FeeQuote, error) {
		called = true
		return nil, errors.New("should not be called")
	}}
	s := newService(t, router.Providers{Tatum: p})

	quote, err := s.Fee(context.Background(), "doge")
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if called {
		t.Error("unrouted chain must not reach a provider")
	}
	if *quote != (models.FeeQuote{}) {
		t.Errorf("quote = %+v, want empty", quote)
	}
}

func TestAccountResourceAddsFeeConstants(t *testing.T) {
	p := &stub{name: "tatum", resourceFn: func(address, contract string) (map[string]any, error) {
		return map[string]any{"chain": "tron", "address": address, "bandwidth": int64(600)}, nil
	}}
	s := newService(t, router.Providers{Tatum: p})

	res, err := s.AccountResource(context.Background(), "tron", "Taddr", "")
	if err != nil {
		t.Fatalf("AccountResource: %v", err)
	}
	if res["feeBandwidth"] != "0.001" || res["feeEnergy"] != "0.00021" {
		t.Errorf("fee fields = %v", res)
	}
	if res["feeActivation"] != "1" || res["feeEnergyNeeded"] != 65000 {
		t.Errorf("activation fields = %v", res)
	}
	if res["bandwidth"] != int64(600) {
		t.Errorf("provider fields must pass through, got %v", res)
	}
}

func TestAccountResourceNonTronFallsBackToBalance(t *testing.T) {
	p := &stub{name: "tatum", balanceFn: func(chain, address, contract string) (*models.BalanceResult, error) {
		return &models.BalanceResult{Balance: "0.420000"}, nil
	}}
	s := newService(t, router.Providers{Tatum: p})

	res, err := s.AccountResource(context.Background(), "bitcoin", "bc1qaddr", "")
	if err != nil {
		t.Fatalf("AccountResource: %v", err)
	}
	if res["balance"] != "0.420000" || res["chain"] != "bitcoin" {
		t.Errorf("res = %v", res)
	}
	if res["feeBandwidth"] != "0.001" {
		t.Errorf("fee constants must be supplemented on every chain, got %v", res)
	}
}

func TestBroadcastPassesThrough(t *testing.T) {
	var gotHex string
	p := &stub{name: "tatum", broadcastFn: func(chain, txHex string) (string, error) {
		gotHex = txHex
		return "0xdeadbeef", nil
	}}
	s := newService(t, router.Providers{Tatum: p})

	txid, err := s.Broadcast(context.Background(), "bitcoin", "0102abcd")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != "0xdeadbeef" || gotHex != "0102abcd" {
		t.Errorf("txid = %q hex = %q", txid, gotHex)
	}
}

func TestTransactionNotFound(t *testing.T) {
	p := &stub{name: "tatum", txFn: func(string, string) (map[string]any, error) {
		return nil, providers.ErrNotFound
	}}
	s := newService(t, router.Providers{Tatum: p})

	if _, err := s.Transaction(context.Background(), "bitcoin", "missing"); !errors.Is(err, providers.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
