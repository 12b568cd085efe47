package providers

import (
	"context"

	"github.com/rawblock/chain-gateway/internal/upstream"
)

// TronGrid supplies the one datum Tatum's Tron account view omits:
// available energy.
type TronGrid struct {
	run    *upstream.Runner
	apiKey string

	BaseURL string
}

func NewTronGrid(run *upstream.Runner, apiKey string) *TronGrid {
	return &TronGrid{
		run:     run,
		apiKey:  apiKey,
		BaseURL: "https://api.trongrid.io",
	}
}

func (t *TronGrid) Name() string { return "trongrid" }

func (t *TronGrid) Energy(ctx context.Context, address string) (int64, error) {
	var out struct {
		EnergyLimit int64 `json:"EnergyLimit"`
		EnergyUsed  int64 `json:"EnergyUsed"`
	}
	headers := map[string]string{"TRON-PRO-API-KEY": t.apiKey}
	body := map[string]any{"address": address, "visible": true}
	if err := t.run.PostJSON(ctx, t.BaseURL+"/wallet/getaccountresource", headers, body, &out); err != nil {
		return 0, err
	}
	energy := out.EnergyLimit - out.EnergyUsed
	if energy < 0 {
		energy = 0
	}
	return energy, nil
}
