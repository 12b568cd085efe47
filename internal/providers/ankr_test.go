package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestAnkr(t *testing.T, handler http.Handler) *Ankr {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a := NewAnkr(testRunner(), testCodec(t), "key")
	a.BaseURL = srv.URL
	a.now = func() time.Time { return time.Unix(1700000000, 0) }
	return a
}

func xrpHandler(t *testing.T, results map[string]string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		body, ok := results[req.Method]
		if !ok {
			t.Errorf("unexpected method %q", req.Method)
			body = `{}`
		}
		w.Write([]byte(`{"result":` + body + `}`))
	})
}

func TestAnkrXrpBalance(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"account_info": `{"status":"success","ledger_index":812345,
			"account_data":{"Balance":"25000000","Sequence":7}}`,
		"server_info": `{"info":{"validated_ledger":{"reserve_base_xrp":10,"reserve_inc_xrp":2}}}`,
	}))

	res, err := a.Balance(context.Background(), "ripple", "rAddr", "")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Balance != "25.000000" {
		t.Errorf("balance = %q", res.Balance)
	}
	if res.Extra["sequence"] != int64(7) {
		t.Errorf("sequence = %v", res.Extra["sequence"])
	}
	if res.Extra["base_reserve"] != 10.0 || res.Extra["owner_reserve"] != 2.0 {
		t.Errorf("reserves = %v / %v", res.Extra["base_reserve"], res.Extra["owner_reserve"])
	}
}

func TestAnkrXrpBalanceUnfunded(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"account_info": `{"status":"error","error":"actNotFound"}`,
	}))
	res, err := a.Balance(context.Background(), "ripple", "rMissing", "")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if res.Balance != "-0.000000" {
		t.Errorf("balance = %q", res.Balance)
	}
	if res.Extra["sequence"] != int64(0) {
		t.Errorf("sequence = %v", res.Extra["sequence"])
	}
}

func TestAnkrReserveCache(t *testing.T) {
	var serverInfoCalls int32
	a := newTestAnkr(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		switch req.Method {
		case "account_info":
			w.Write([]byte(`{"result":{"status":"success","ledger_index":1,
				"account_data":{"Balance":"1000000","Sequence":1}}}`))
		case "server_info":
			atomic.AddInt32(&serverInfoCalls, 1)
			w.Write([]byte(`{"result":{"info":{"validated_ledger":{"reserve_base_xrp":10,"reserve_inc_xrp":2}}}}`))
		}
	}))

	for i := 0; i < 3; i++ {
		if _, err := a.Balance(context.Background(), "ripple", "rAddr", ""); err != nil {
			t.Fatalf("Balance: %v", err)
		}
	}
	if n := atomic.LoadInt32(&serverInfoCalls); n != 1 {
		t.Errorf("server_info calls = %d, want 1", n)
	}
}

func TestAnkrXrpHistory(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"account_tx": `{"transactions":[
			{"meta":{"TransactionResult":"tesSUCCESS"},
			 "tx":{"hash":"h1","TransactionType":"Payment","Account":"rFrom","Destination":"rTo",
			       "Amount":"5000000","date":760000000}},
			{"meta":{"TransactionResult":"tecUNFUNDED"},
			 "tx":{"hash":"h2","TransactionType":"Payment","Account":"rFrom","Destination":"rTo",
			       "Amount":"5000000","date":760000001}},
			{"meta":{"TransactionResult":"tesSUCCESS"},
			 "tx":{"hash":"h3","TransactionType":"OfferCreate","Account":"rFrom","Destination":"",
			       "Amount":"1","date":760000002}},
			{"meta":{"TransactionResult":"tesSUCCESS"},
			 "tx":{"hash":"h4","TransactionType":"Payment","Account":"rFrom","Destination":"rTo",
			       "Amount":{"currency":"USD","issuer":"rIssuer","value":"5"},"date":760000003}}
		]}`,
	}))

	txs, err := a.History(context.Background(), "ripple", "rFrom", "", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	// Failed, non-Payment and issued-currency records are all dropped.
	if len(txs) != 1 {
		t.Fatalf("got %d transfers, want 1", len(txs))
	}
	tr := txs[0]
	if tr.Txid != "h1" || tr.Value != "5.000000" {
		t.Errorf("transfer = %+v", tr)
	}
	wantTs := int64(760000000+rippleEpochOffset) * 1000
	if tr.Timestamp != wantTs {
		t.Errorf("timestamp = %d, want %d", tr.Timestamp, wantTs)
	}
}

func TestAnkrXrpFee(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"fee": `{"drops":{"open_ledger_fee":"25"}}`,
	}))
	fee, err := a.Fee(context.Background(), "ripple")
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if fee.Slow != "0.000025" || fee.Fast != "0.000025" {
		t.Errorf("fee = %+v", fee)
	}
}

func TestAnkrXrpFeeFloor(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"fee": `{"drops":{"open_ledger_fee":"3"}}`,
	}))
	fee, err := a.Fee(context.Background(), "ripple")
	if err != nil {
		t.Fatalf("Fee: %v", err)
	}
	if fee.Medium != "0.000012" {
		t.Errorf("fee = %+v, want floor 0.000012", fee)
	}
}

func TestAnkrBroadcast(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"submit": `{"engine_result":"tesSUCCESS","tx_json":{"hash":"DEADBEEF"}}`,
	}))
	txid, err := a.Broadcast(context.Background(), "ripple", "0xABCD")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if txid != "DEADBEEF" {
		t.Errorf("txid = %q", txid)
	}
}

func TestAnkrBroadcastRejected(t *testing.T) {
	a := newTestAnkr(t, xrpHandler(t, map[string]string{
		"submit": `{"engine_result":"tefPAST_SEQ","tx_json":{"hash":"X"}}`,
	}))
	if _, err := a.Broadcast(context.Background(), "ripple", "ABCD"); err == nil {
		t.Error("expected rejection error")
	}
}
