package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/upstream"
)

func testRunner() *upstream.Runner {
	return upstream.NewRunner("test", upstream.NewClient(5*time.Second), 4, 0)
}

func TestBinanceFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`[
			{"symbol":"ETHUSDT","price":"2500.5"},
			{"symbol":"BTCUSD","price":"65000"},
			{"symbol":"BTCUSDT","price":"64000"},
			{"symbol":"TRXUSDT","price":"0.12"}
		]`))
	}))
	t.Cleanup(srv.Close)
	tier := NewBinance(testRunner())
	tier.BaseURL = srv.URL

	got, err := tier.Fetch(context.Background(), []string{"BTC", "ETH", "TRX", "FOO"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	// First listing wins for BTC; TRX is blacklisted; FOO is unlisted.
	want := map[string]float64{"BTC": 65000, "ETH": 2500.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("quotes = %v, want %v", got, want)
	}
}

func TestBinanceAllBlacklisted(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)
	tier := NewBinance(testRunner())
	tier.BaseURL = srv.URL

	got, err := tier.Fetch(context.Background(), []string{"TRX", "XRP"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 0 || called {
		t.Errorf("expected no lookup for fully blacklisted request, got %v called=%v", got, called)
	}
}

func TestOKXFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("instType") != "SPOT" {
			t.Errorf("instType = %q", r.URL.Query().Get("instType"))
		}
		w.Write([]byte(`{"code":"0","data":[
			{"instId":"TRX-USDT","last":"0.13"},
			{"instId":"XRP-USD","last":"0.55"},
			{"instId":"BTC-EUR","last":"60000"}
		]}`))
	}))
	t.Cleanup(srv.Close)
	tier := NewOKX(testRunner())
	tier.BaseURL = srv.URL

	got, err := tier.Fetch(context.Background(), []string{"TRX", "XRP", "BTC"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	want := map[string]float64{"TRX": 0.13, "XRP": 0.55}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("quotes = %v, want %v", got, want)
	}
}

func TestOKXErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50011","msg":"rate limit","data":[]}`))
	}))
	t.Cleanup(srv.Close)
	tier := NewOKX(testRunner())
	tier.BaseURL = srv.URL

	if _, err := tier.Fetch(context.Background(), []string{"BTC"}); err == nil {
		t.Fatal("expected error for non-zero code")
	}
}

func TestCoinGeckoFetch(t *testing.T) {
	reg, err := registry.Load()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		if r.URL.Query().Get("vs_currencies") != "usd" {
			t.Errorf("vs_currencies = %q", r.URL.Query().Get("vs_currencies"))
		}
		w.Write([]byte(`{"bitcoin":{"usd":66123.4},"tether":{"usd":1.0}}`))
	}))
	t.Cleanup(srv.Close)
	tier := NewCoinGecko(testRunner(), reg)
	tier.BaseURL = srv.URL

	got, err := tier.Fetch(context.Background(), []string{"BTC", "USDT", "NOPE"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotIDs != "bitcoin,tether" {
		t.Errorf("ids = %q", gotIDs)
	}
	want := map[string]float64{"BTC": 66123.4, "USDT": 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("quotes = %v, want %v", got, want)
	}
}

type stubTier struct {
	name   string
	quotes map[string]float64
	err    error
	calls  int
	asked  [][]string
}

func (s *stubTier) Name() string { return s.name }

func (s *stubTier) Fetch(_ context.Context, symbols []string) (map[string]float64, error) {
	s.calls++
	s.asked = append(s.asked, append([]string(nil), symbols...))
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64)
	for _, sym := range symbols {
		if p, ok := s.quotes[sym]; ok {
			out[sym] = p
		}
	}
	return out, nil
}

func TestAggregatorCascade(t *testing.T) {
	first := &stubTier{name: "first", quotes: map[string]float64{"BTC": 65000}}
	second := &stubTier{name: "second", quotes: map[string]float64{"ETH": 2500, "BTC": 1}}
	agg := NewAggregator(first, second)

	data, failed := agg.Quotes(context.Background(), []string{"btc", "eth", "xmr"})
	want := map[string]float64{"BTC": 65000, "ETH": 2500}
	if !reflect.DeepEqual(data, want) {
		t.Errorf("data = %v, want %v", data, want)
	}
	if !reflect.DeepEqual(failed, []string{"XMR"}) {
		t.Errorf("failed = %v", failed)
	}
	// The second tier must only see what the first could not quote.
	if !reflect.DeepEqual(second.asked[0], []string{"ETH", "XMR"}) {
		t.Errorf("second tier asked %v", second.asked[0])
	}
}

func TestAggregatorTierErrorFallsThrough(t *testing.T) {
	broken := &stubTier{name: "broken", err: context.DeadlineExceeded}
	backup := &stubTier{name: "backup", quotes: map[string]float64{"BTC": 64000}}
	agg := NewAggregator(broken, backup)

	data, failed := agg.Quotes(context.Background(), []string{"BTC"})
	if data["BTC"] != 64000 {
		t.Errorf("data = %v", data)
	}
	if len(failed) != 0 {
		t.Errorf("failed = %v", failed)
	}
}

func TestAggregatorCacheTTL(t *testing.T) {
	tier := &stubTier{name: "only", quotes: map[string]float64{"BTC": 65000}}
	agg := NewAggregator(tier)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }

	agg.Quotes(context.Background(), []string{"BTC"})
	if tier.calls != 1 {
		t.Fatalf("calls = %d", tier.calls)
	}

	clock = clock.Add(10 * time.Second)
	data, _ := agg.Quotes(context.Background(), []string{"BTC"})
	if tier.calls != 1 {
		t.Errorf("cache miss inside TTL, calls = %d", tier.calls)
	}
	if data["BTC"] != 65000 {
		t.Errorf("cached data = %v", data)
	}

	clock = clock.Add(6 * time.Second)
	agg.Quotes(context.Background(), []string{"BTC"})
	if tier.calls != 2 {
		t.Errorf("expected refetch after TTL, calls = %d", tier.calls)
	}
}

func TestAggregatorDedupesSymbols(t *testing.T) {
	tier := &stubTier{name: "only", quotes: map[string]float64{"BTC": 65000}}
	agg := NewAggregator(tier)

	data, _ := agg.Quotes(context.Background(), []string{"BTC", "btc", " BTC "})
	if len(data) != 1 || data["BTC"] != 65000 {
		t.Errorf("data = %v", data)
	}
	if len(tier.asked[0]) != 1 {
		t.Errorf("tier asked %v", tier.asked[0])
	}
}
