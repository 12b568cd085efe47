package models

// Transfer is the canonical transaction record every chain adapter
// normalizes into. Timestamp is always milliseconds since the Unix
// epoch; adapters convert chain-native epochs (seconds, Ripple epoch)
// before building one of these.
type Transfer struct {
	Txid      string `json:"txid"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"` // canonical decimal string
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`
	Status    *int   `json:"status,omitempty"`   // 1=confirmed, 0=failed on-chain
	GasUsed   string `json:"gasUsed,omitempty"`  // EVM scan sources only
	GasPrice  string `json:"gasPrice,omitempty"` // wei string, EVM scan sources only
}

// UTXO is a spendable output. Chains with object models (Sui) carry
// the extra fields the signer needs; BTC-family chains leave them empty.
type UTXO struct {
	Chain   string `json:"chain,omitempty"`
	Address string `json:"address,omitempty"`
	TxHash  string `json:"txHash"`
	Index   int64  `json:"index"`
	Value   string `json:"value"`
	Script  string `json:"script,omitempty"` // scriptPubKey, required for BTC-family signing
	Height  int64  `json:"height,omitempty"`

	// Sui coin object identity
	ObjectID     string `json:"objectId,omitempty"`
	Version      string `json:"version,omitempty"`
	ObjectDigest string `json:"objectDigest,omitempty"`
}

// FeeQuote carries three congestion tiers; chains without fee markets
// return the same value in all three.
type FeeQuote struct {
	Slow   string `json:"slow"`
	Medium string `json:"medium"`
	Fast   string `json:"fast"`
}

// GasEstimate is the EVM-family fee pair. GasPrice is a wei string,
// GasLimit a decimal string.
type GasEstimate struct {
	GasPrice string `json:"gasPrice"`
	GasLimit string `json:"gasLimit"`
}

// BalanceResult is a canonical balance plus chain-specific state
// (Ripple reserves and sequence, TON deployment info). Extra keys are
// merged into the response object next to "balance".
type BalanceResult struct {
	Balance string
	Extra   map[string]any
}

// SeqnoResult is the TON wallet-contract counter record.
type SeqnoResult struct {
	Seqno        int64  `json:"seqno"`
	IsDeployed   bool   `json:"is_deployed"`
	Balance      string `json:"balance"`
	EstimatedFee string `json:"estimated_fee"`
}

// BroadcastResult is what POST /broadcast returns on success.
type BroadcastResult struct {
	Success bool   `json:"success"`
	Txid    string `json:"txid,omitempty"`
	Error   string `json:"error,omitempty"`
}
