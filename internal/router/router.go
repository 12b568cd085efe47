// Package router decides which providers serve each (chain, operation)
// pair. The table is static: ordering encodes preference, and only the
// first healthy provider's answer is used.
package router

import (
	"fmt"

	"github.com/rawblock/chain-gateway/internal/providers"
)

// Operation names a gateway capability.
type Operation string

const (
	OpBalance   Operation = "balance"
	OpHistory   Operation = "transactions"
	OpUTXO      Operation = "utxo"
	OpFee       Operation = "fee"
	OpNonce     Operation = "nonce"
	OpGas       Operation = "estimateGas"
	OpSeqno     Operation = "seqno"
	OpBlock     Operation = "block"
	OpBroadcast Operation = "broadcast"
	OpTxDetail  Operation = "tx"
)

// Providers bundles every adapter the router can dispatch to.
type Providers struct {
	Tatum     providers.Provider
	Ankr      providers.Provider
	Etherscan providers.Provider
	BSC       providers.Provider
	Avax      providers.Provider
	ETC       providers.Provider
	Sui       providers.Provider
	Dash      providers.Provider
	TonCenter providers.Provider
}

type route map[string][]providers.Provider

// Router resolves chains to ordered provider lists per operation.
type Router struct {
	tables map[Operation]route
	deflt  map[Operation][]providers.Provider
}

var etherscanChains = []string{"ethereum", "arbitrum", "arbitrumnova", "polygon"}

// New builds the dispatch table. Specialized sources take their chains;
// Tatum backs everything else.
func New(p Providers) *Router {
	balance := route{
		"ton":        {p.Ankr, p.Tatum},
		"ripple":     {p.Ankr},
		"dash":       {p.Dash},
		"classic":    {p.ETC},
		"sui":        {p.Sui},
		"smartchain": {p.BSC},
		"avalanchec": {p.Avax},
	}
	history := route{
		"ton":        {p.TonCenter},
		"ripple":     {p.Ankr},
		"dash":       {p.Dash},
		"classic":    {p.ETC},
		"sui":        {p.Sui},
		"smartchain": {p.Tatum},
		"avalanchec": {p.Avax},
	}
	nonceGas := route{
		"classic":    {p.ETC},
		"smartchain": {p.BSC},
		"avalanchec": {p.Avax},
	}
	fee := route{
		"ripple":      {p.Ankr},
		"classic":     {p.ETC},
		"sui":         {p.Sui},
		"bitcoin":     {p.Tatum},
		"bitcoincash": {p.Tatum},
	}
	utxo := route{
		"dash": {p.Dash},
		"sui":  {p.Sui},
	}
	broadcast := route{
		"ripple":     {p.Ankr},
		"dash":       {p.Dash},
		"classic":    {p.ETC},
		"sui":        {p.Sui},
		"smartchain": {p.BSC},
		"avalanchec": {p.Avax},
		"ton":        {p.TonCenter},
	}
	block := route{
		"classic":    {p.ETC},
		"smartchain": {p.BSC},
		"avalanchec": {p.Avax},
	}
	txDetail := route{}
	for _, c := range etherscanChains {
		balance[c] = []providers.Provider{p.Etherscan}
		history[c] = []providers.Provider{p.Etherscan}
		nonceGas[c] = []providers.Provider{p.Etherscan}
		broadcast[c] = []providers.Provider{p.Etherscan}
		txDetail[c] = []providers.Provider{p.Etherscan}
		block[c] = []providers.Provider{p.Etherscan}
	}

	return &Router{
		tables: map[Operation]route{
			OpBalance:   balance,
			OpHistory:   history,
			OpNonce:     nonceGas,
			OpGas:       nonceGas,
			OpFee:       fee,
			OpUTXO:      utxo,
			OpBroadcast: broadcast,
			OpTxDetail:  txDetail,
			OpSeqno:     {"ton": {p.TonCenter}},
			OpBlock:     block,
		},
		deflt: map[Operation][]providers.Provider{
			OpBalance:   {p.Tatum},
			OpHistory:   {p.Tatum},
			OpNonce:     {p.Tatum},
			OpGas:       {p.Tatum},
			OpUTXO:      {p.Tatum},
			OpBroadcast: {p.Tatum},
			OpTxDetail:  {p.Tatum},
			OpBlock:     {p.Tatum},
			OpSeqno:     {p.TonCenter},
			// Fee has no catch-all: unrouted chains get an empty
			// quote from the service layer instead.
		},
	}
}

// Route returns the ordered provider candidates for one operation on
// one chain. An empty slice means the operation is not served there.
func (r *Router) Route(op Operation, chain string) []providers.Provider {
	if table, ok := r.tables[op]; ok {
		if list, ok := table[chain]; ok {
			return list
		}
	}
	return r.deflt[op]
}

// Names renders a route for logging.
func Names(list []providers.Provider) string {
	out := ""
	for i, p := range list {
		if i > 0 {
			out += ","
		}
		out += p.Name()
	}
	return fmt.Sprintf("[%s]", out)
}
