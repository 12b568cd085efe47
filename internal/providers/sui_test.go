package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestSui(t *testing.T, handler http.Handler) *Sui {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s := NewSui(testRunner(), testCodec(t))
	s.NodeURL = srv.URL
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestSuiBalance(t *testing.T) {
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"coinType":"0x2::sui::SUI","totalBalance":"2500000000"}}`))
	}))
	res, err := s.Balance(context.Background(), "sui", "0xme", "")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Balance != "2.50000000" {
		t.Errorf("balance = %q", res.Balance)
	}
}

func TestSuiHistoryMergesAndSorts(t *testing.T) {
	const me = "0xme"
	sentPage := `{"data":[
		{"digest":"dOut","timestampMs":"1700000200000",
		 "transaction":{"data":{"sender":"0xme"}},
		 "balanceChanges":[
			{"owner":{"AddressOwner":"0xme"},"coinType":"0x2::sui::SUI","amount":"-1500000000"},
			{"owner":{"AddressOwner":"0xpeer"},"coinType":"0x2::sui::SUI","amount":"1400000000"}]}
	]}`
	recvPage := `{"data":[
		{"digest":"dIn","timestampMs":"1700000300000",
		 "transaction":{"data":{"sender":"0xpeer"}},
		 "balanceChanges":[
			{"owner":{"AddressOwner":"0xme"},"coinType":"0x2::sui::SUI","amount":"2000000000"}]},
		{"digest":"dOut","timestampMs":"1700000200000",
		 "transaction":{"data":{"sender":"0xme"}},
		 "balanceChanges":[]}
	]}`
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params []json.RawMessage `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Params) > 0 && jsonContains(req.Params[0], "FromAddress") {
			w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + sentPage + `}`))
			return
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + recvPage + `}`))
	}))

	txs, err := s.History(context.Background(), "sui", me, "", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// dOut appears in both pages but is deduplicated.
	if len(txs) != 2 {
		t.Fatalf("got %d transfers", len(txs))
	}
	if txs[0].Txid != "dIn" || txs[1].Txid != "dOut" {
		t.Errorf("order = %q, %q", txs[0].Txid, txs[1].Txid)
	}
	in := txs[0]
	if in.From != "0xpeer" || in.To != me || in.Value != "2.00000000" {
		t.Errorf("incoming = %+v", in)
	}
	out := txs[1]
	if out.From != me || out.To != "0xpeer" || out.Value != "1.50000000" {
		t.Errorf("outgoing = %+v", out)
	}
}

func jsonContains(raw json.RawMessage, key string) bool {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	filter, _ := m["filter"].(map[string]any)
	_, ok := filter[key]
	return ok
}

func TestSuiFeeDefault(t *testing.T) {
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"750"}`))
	}))
	fee, err := s.Fee(context.Background(), "sui")
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if fee.Slow != "750" || fee.Medium != "750" || fee.Fast != "750" {
		t.Errorf("fee = %+v", fee)
	}
}

func TestSuiUTXOs(t *testing.T) {
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"data":[
			{"coinObjectId":"0xobj1","version":"123","digest":"dg1","balance":"1000000000"}
		]}}`))
	}))
	utxos, err := s.UTXOs(context.Background(), "sui", "0xme", "0")
	if err != nil {
		t.Fatalf("UTXOs: %v", err)
	}
	if len(utxos) != 1 {
		t.Fatalf("got %d utxos", len(utxos))
	}
	u := utxos[0]
	if u.ObjectID != "0xobj1" || u.Version != "123" || u.ObjectDigest != "dg1" {
		t.Errorf("object identity = %+v", u)
	}
	if u.Value != "1.00000000" || u.Chain != "sui-mainnet" {
		t.Errorf("utxo = %+v", u)
	}
}

func TestSuiBroadcast(t *testing.T) {
	var gotMethod string
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotMethod = req.Method
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"digest":"txdigest"}}`))
	}))
	payload := `{"txBytes":"AAAB","signature":"AElm"}`
	txid, err := s.Broadcast(context.Background(), "sui", payload)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != "txdigest" || gotMethod != "sui_executeTransactionBlock" {
		t.Errorf("txid = %q method = %q", txid, gotMethod)
	}
}

func TestSuiBroadcastBadPayload(t *testing.T) {
	s := newTestSui(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	if _, err := s.Broadcast(context.Background(), "sui", "deadbeef"); err == nil {
		t.Error("expected error for non-JSON payload")
	}
	if _, err := s.Broadcast(context.Background(), "sui", `{"txBytes":""}`); err == nil {
		t.Error("expected error for missing fields")
	}
}
