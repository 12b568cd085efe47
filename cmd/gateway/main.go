package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rawblock/chain-gateway/internal/amount"
	"github.com/rawblock/chain-gateway/internal/api"
	"github.com/rawblock/chain-gateway/internal/gateway"
	"github.com/rawblock/chain-gateway/internal/prices"
	"github.com/rawblock/chain-gateway/internal/providers"
	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/internal/router"
	"github.com/rawblock/chain-gateway/internal/upstream"
)

const (
	upstreamTimeout     = 30 * time.Second
	priceStreamInterval = 15 * time.Second
	rateLimitPerMin     = 60
)

func main() {
	log.Println("Starting RawBlock Chain Gateway...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	tatumKey := requireEnv("TATUM_API_KEY_MAINNET")
	ankrKey := requireEnv("ANKR_API_KEY_MAINNET")
	etherscanKey := requireEnv("ETHERSCAN_API_KEY_MAINNET")
	tronGridKey := getEnvOrDefault("TRONGRID_API_KEY_MAINNET", "")
	tonKey := getEnvOrDefault("TON_API_KEY_MAINNET", "")

	reg, err := registry.Load()
	if err != nil {
		log.Fatalf("FATAL: registry load failed: %v", err)
	}
	codec := amount.NewCodec(reg)

	client := upstream.NewClient(upstreamTimeout)

	// Per-vendor runners: slots cap in-flight requests, spacing paces
	// request starts to stay inside each vendor's rate plan.
	tatumRun := upstream.NewRunner("TATUM", client, 2, 1*time.Second)
	ankrRun := upstream.NewRunner("ANKR", client, 2, 500*time.Millisecond)
	etherscanRun := upstream.NewRunner("ETHERSCAN", client, 5, 0)
	bscRun := upstream.NewRunner("BSC", client, 10, 0)
	avaxRun := upstream.NewRunner("AVAX", client, 10, 0)
	etcRun := upstream.NewRunner("ETC", client, 10, 0)
	suiRun := upstream.NewRunner("SUI", client, 10, 0)
	dashRun := upstream.NewRunner("DASH", client, 5, 0)
	tonRun := upstream.NewRunner("TONCENTER", client, 5, 0)
	tronRun := upstream.NewRunner("TRONGRID", client, 5, 0)
	binanceRun := upstream.NewRunner("BINANCE", client, 2, 0)
	okxRun := upstream.NewRunner("OKX", client, 2, 0)
	geckoRun := upstream.NewRunner("COINGECKO", client, 2, 0)

	tronGrid := providers.NewTronGrid(tronRun, tronGridKey)
	routes := router.New(router.Providers{
		Tatum:     providers.NewTatum(tatumRun, codec, tatumKey, tronGrid),
		Ankr:      providers.NewAnkr(ankrRun, codec, ankrKey),
		Etherscan: providers.NewEtherscan(etherscanRun, codec, reg, etherscanKey),
		BSC:       providers.NewBSC(bscRun, codec),
		Avax:      providers.NewAvax(avaxRun, codec),
		ETC:       providers.NewETC(etcRun, codec),
		Sui:       providers.NewSui(suiRun, codec),
		Dash:      providers.NewDash(dashRun, codec),
		TonCenter: providers.NewTonCenter(tonRun, codec, tonKey),
	})
	svc := gateway.New(reg, routes)

	quotes := prices.NewAggregator(
		prices.NewBinance(binanceRun),
		prices.NewOKX(okxRun),
		prices.NewCoinGecko(geckoRun, reg),
	)

	// Redis backs the shared rate limit; without it each replica
	// enforces its own quota locally.
	var rdb *redis.Client
	redisURL := getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0")
	if opts, err := redis.ParseURL(redisURL); err != nil {
		log.Printf("Warning: invalid REDIS_URL, using in-memory rate limiting: %v", err)
	} else {
		rdb = redis.NewClient(opts)
	}
	limiter := api.NewRateLimiter(rdb, rateLimitPerMin)

	wsHub := api.NewHub()
	go wsHub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wsHub.PushPrices(ctx, quotes, streamSymbols(reg), priceStreamInterval)

	r := api.SetupRouter(svc, reg, quotes, wsHub, limiter)

	port := getEnvOrDefault("PORT", "8080")
	log.Printf("Gateway running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// streamSymbols is the full quote universe pushed on /stream/prices.
func streamSymbols(reg *registry.Registry) []string {
	var symbols []string
	for _, coin := range reg.Coins() {
		symbols = append(symbols, coin.Symbol)
	}
	for _, token := range reg.Tokens() {
		symbols = append(symbols, token.Symbol)
	}
	return symbols
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
