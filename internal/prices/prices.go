// Package prices serves USD quotes for supported assets. Quotes come
// from a fixed cascade of exchanges: Binance.US first, OKX for whatever
// Binance missed, CoinGecko as the final fallback. Results are cached
// briefly so polling clients and the stream hub share one upstream hit.
package prices

import (
	"context"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/upstream"
)

const cacheTTL = 15 * time.Second

// Tier is one price source. Fetch returns quotes for whichever of the
// requested uppercase symbols the source knows; missing symbols are not
// an error, they just fall through to the next tier.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) (map[string]float64, error)
}

// BinanceTier quotes from the Binance.US spot ticker list. Some assets
// are not listed there for US users, so those symbols are skipped
// outright instead of burning a lookup.
type BinanceTier struct {
	run     *upstream.Runner
	BaseURL string
}

var binanceBlacklist = map[string]bool{"TRX": true, "XRP": true}

func NewBinance(run *upstream.Runner) *BinanceTier {
	return &BinanceTier{run: run, BaseURL: "https://api.binance.us"}
}

func (b *BinanceTier) Name() string { return "binance" }

func (b *BinanceTier) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	// Pair name -> requested symbol. USD pairs are preferred over USDT
	// only by list order; first match per symbol wins.
	targets := make(map[string]string)
	for _, s := range symbols {
		if binanceBlacklist[s] {
			continue
		}
		targets[s+"USD"] = s
		targets[s+"USDT"] = s
	}
	if len(targets) == 0 {
		return map[string]float64{}, nil
	}

	var tickers []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := b.run.GetJSON(ctx, b.BaseURL+"/api/v3/ticker/price", nil, &tickers); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, item := range tickers {
		sym, ok := targets[item.Symbol]
		if !ok {
			continue
		}
		if _, done := out[sym]; done {
			continue
		}
		price, err := strconv.ParseFloat(item.Price, 64)
		if err != nil {
			continue
		}
		out[sym] = price
	}
	return out, nil
}

// OKXTier quotes from the OKX spot ticker list.
type OKXTier struct {
	run     *upstream.Runner
	BaseURL string
}

func NewOKX(run *upstream.Runner) *OKXTier {
	return &OKXTier{run: run, BaseURL: "https://www.okx.com"}
}

func (o *OKXTier) Name() string { return "okx" }

func (o *OKXTier) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	targets := make(map[string]string)
	for _, s := range symbols {
		targets[s+"-USDT"] = s
		targets[s+"-USD"] = s
	}
	var resp struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			InstID string `json:"instId"`
			Last   string `json:"last"`
		} `json:"data"`
	}
	if err := o.run.GetJSON(ctx, o.BaseURL+"/api/v5/market/tickers?instType=SPOT", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, &upstream.Error{Outcome: upstream.Fatal, Err: &okxError{code: resp.Code, msg: resp.Msg}}
	}
	out := make(map[string]float64)
	for _, item := range resp.Data {
		sym, ok := targets[item.InstID]
		if !ok {
			continue
		}
		if _, done := out[sym]; done {
			continue
		}
		price, err := strconv.ParseFloat(item.Last, 64)
		if err != nil {
			continue
		}
		out[sym] = price
	}
	return out, nil
}

type okxError struct {
	code, msg string
}

func (e *okxError) Error() string { return "okx code " + e.code + ": " + e.msg }

// CoinGeckoTier resolves symbols through the registry's CoinGecko id
// mapping and hits the simple price endpoint in one batch.
type CoinGeckoTier struct {
	run     *upstream.Runner
	reg     *registry.Registry
	BaseURL string
}

func NewCoinGecko(run *upstream.Runner, reg *registry.Registry) *CoinGeckoTier {
	return &CoinGeckoTier{run: run, reg: reg, BaseURL: "https://api.coingecko.com"}
}

func (c *CoinGeckoTier) Name() string { return "coingecko" }

func (c *CoinGeckoTier) Fetch(ctx context.Context, symbols []string) (map[string]float64, error) {
	symByID := make(map[string]string)
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		id, ok := c.reg.CgIDForSymbol(s)
		if !ok {
			continue
		}
		if _, dup := symByID[id]; !dup {
			ids = append(ids, id)
		}
		symByID[id] = s
	}
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}

	u := c.BaseURL + "/api/v3/simple/price?ids=" + url.QueryEscape(strings.Join(ids, ",")) + "&vs_currencies=usd"
	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.run.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for id, quote := range resp {
		if sym, ok := symByID[id]; ok {
			out[sym] = quote.USD
		}
	}
	return out, nil
}

type cachedQuote struct {
	price  float64
	expiry time.Time
}

// Aggregator runs the tier cascade and caches results per symbol.
type Aggregator struct {
	tiers []Tier
	mu    sync.Mutex
	cache map[string]cachedQuote
	now   func() time.Time
}

func NewAggregator(tiers ...Tier) *Aggregator {
	return &Aggregator{
		tiers: tiers,
		cache: make(map[string]cachedQuote),
		now:   time.Now,
	}
}

// Quotes returns USD prices for the requested symbols. Symbols no tier
// could quote come back in failed; the data map only ever holds real
// numbers. Lookup is case-insensitive and duplicate symbols collapse.
func (a *Aggregator) Quotes(ctx context.Context, symbols []string) (map[string]float64, []string) {
	now := a.now()
	data := make(map[string]float64)
	var missing []string

	a.mu.Lock()
	seen := make(map[string]bool)
	for _, raw := range symbols {
		s := strings.ToUpper(strings.TrimSpace(raw))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if entry, ok := a.cache[s]; ok && now.Before(entry.expiry) {
			data[s] = entry.price
		} else {
			missing = append(missing, s)
		}
	}
	a.mu.Unlock()

	for _, tier := range a.tiers {
		if len(missing) == 0 {
			break
		}
		got, err := tier.Fetch(ctx, missing)
		if err != nil {
			log.Printf("[PRICES] tier %s failed: %v", tier.Name(), err)
			continue
		}
		still := missing[:0]
		for _, s := range missing {
			if price, ok := got[s]; ok {
				data[s] = price
			} else {
				still = append(still, s)
			}
		}
		missing = still

		if len(got) > 0 {
			expiry := a.now().Add(cacheTTL)
			a.mu.Lock()
			for s, price := range got {
				a.cache[s] = cachedQuote{price: price, expiry: expiry}
			}
			a.mu.Unlock()
		}
	}

	failed := make([]string, len(missing))
	copy(failed, missing)
	return data, failed
}
