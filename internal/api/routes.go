package api

import (
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/chain-gateway/internal/gateway"
	"github.com/rawblock/chain-gateway/internal/prices"
	"github.com/rawblock/chain-gateway/internal/providers"
	"github.com/rawblock/chain-gateway/internal/registry"
	"github.com/rawblock/chain-gateway/pkg/models"
)

const defaultHistoryLimit = 10

type APIHandler struct {
	svc    *gateway.Service
	reg    *registry.Registry
	quotes *prices.Aggregator
	docs   *DocStore
	wsHub  *Hub
}

func SetupRouter(svc *gateway.Service, reg *registry.Registry, quotes *prices.Aggregator, wsHub *Hub, limiter *RateLimiter) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var
	// Production: ALLOWED_ORIGINS=https://wallet.example.com
	// Development: leave empty for *
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					// Credentials are only allowed with an explicit
					// origin echo, never with the wildcard.
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Every response carries a request id for log correlation.
	r.Use(func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	})

	if limiter != nil {
		r.Use(limiter.Middleware())
	}

	handler := &APIHandler{svc: svc, reg: reg, quotes: quotes, docs: NewDocStore(), wsHub: wsHub}

	r.GET("/config/tokens", handler.handleConfigTokens)
	r.GET("/prices", handler.handlePrices)
	r.GET("/version", handler.handleVersion)
	r.GET("/docs/:type", handler.handleDocs)

	r.GET("/balance/:chain/:address", handler.handleBalance)
	r.GET("/accountResource/:chain/:address", handler.handleAccountResource)
	r.GET("/transaction/:chain/:address", handler.handleHistory)
	r.GET("/utxo/:chain/:address", handler.handleUTXO)
	r.GET("/block/:chain", handler.handleBlock)
	r.GET("/block/:chain/:address", handler.handleBlock)
	r.GET("/fee/:chain", handler.handleFee)
	r.GET("/nonce/:chain/:address", handler.handleNonce)
	r.GET("/estimateGas/:chain/:address", handler.handleEstimateGas)
	r.GET("/seqno/:chain/:address", handler.handleSeqno)
	r.GET("/tx/:chain/:txid", handler.handleTxDetail)
	r.POST("/broadcast/:chain", AuthMiddleware(), handler.handleBroadcast)

	if wsHub != nil {
		r.GET("/stream/prices", wsHub.Subscribe)
	}

	return r
}

// fail maps service errors onto the three client-visible classes:
// fixable request, missing entity, upstream trouble.
func (h *APIHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gateway.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported chain or contract"})
	case errors.Is(err, providers.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		// Upstream detail goes to the log only; clients get a generic
		// diagnostic keyed by the request id.
		log.Printf("[API] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
	}
}

func chainKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (h *APIHandler) handleConfigTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"coins":  h.reg.ChainKeys(),
		"tokens": h.reg.Tokens(),
	})
}

func (h *APIHandler) handlePrices(c *gin.Context) {
	var symbols []string
	if coins := c.Query("coins"); coins != "" {
		symbols = strings.Split(coins, ",")
	} else {
		// No filter: quote everything the registry knows.
		for _, coin := range h.reg.Coins() {
			symbols = append(symbols, coin.Symbol)
		}
		for _, token := range h.reg.Tokens() {
			symbols = append(symbols, token.Symbol)
		}
	}
	data, failed := h.quotes.Quotes(c.Request.Context(), symbols)
	c.JSON(http.StatusOK, gin.H{
		"code":   200,
		"data":   data,
		"failed": failed,
	})
}

func (h *APIHandler) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": getEnvOrDefault("APP_VERSION", "1.4.2"),
		"name":    "chain-gateway",
		"build":   getEnvOrDefault("APP_BUILD", "dev"),
	})
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (h *APIHandler) handleDocs(c *gin.Context) {
	title, html, err := h.docs.Render(c.Param("type"), c.Query("lang"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown document"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": title, "data": html})
}

func (h *APIHandler) handleBalance(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	contract := strings.TrimSpace(c.Query("contract"))

	res, err := h.svc.Balance(c.Request.Context(), chain, address, contract)
	if err != nil {
		h.fail(c, err)
		return
	}
	body := gin.H{
		"chain":    chain,
		"address":  address,
		"contract": contract,
		"balance":  res.Balance,
	}
	for k, v := range res.Extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func (h *APIHandler) handleAccountResource(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	res, err := h.svc.AccountResource(c.Request.Context(), chain, address, strings.TrimSpace(c.Query("contract")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *APIHandler) handleHistory(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit <= 0 {
		limit = defaultHistoryLimit
	}
	txs, err := h.svc.History(c.Request.Context(), chain, address, strings.TrimSpace(c.Query("contract")), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if txs == nil {
		txs = []models.Transfer{}
	}
	c.JSON(http.StatusOK, txs)
}

func (h *APIHandler) handleUTXO(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	totalValue := c.DefaultQuery("total_value", "0.00000001")
	utxos, err := h.svc.UTXOs(c.Request.Context(), chain, address, totalValue)
	if err != nil {
		h.fail(c, err)
		return
	}
	if utxos == nil {
		utxos = []models.UTXO{}
	}
	c.JSON(http.StatusOK, utxos)
}

func (h *APIHandler) handleBlock(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	block, err := h.svc.LatestBlock(c.Request.Context(), chain)
	if err != nil {
		h.fail(c, err)
		return
	}
	if len(block) == 0 {
		c.JSON(http.StatusBadGateway, gin.H{"error": "empty block response"})
		return
	}
	c.JSON(http.StatusOK, block)
}

func (h *APIHandler) handleFee(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	quote, err := h.svc.Fee(c.Request.Context(), chain)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *APIHandler) handleNonce(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	nonce, err := h.svc.Nonce(c.Request.Context(), chain, address)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, nonce)
}

func (h *APIHandler) handleEstimateGas(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	est, err := h.svc.EstimateGas(c.Request.Context(), chain, strings.TrimSpace(c.Query("contract")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, est)
}

func (h *APIHandler) handleSeqno(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	address := strings.TrimSpace(c.Param("address"))
	res, err := h.svc.Seqno(c.Request.Context(), chain, address)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *APIHandler) handleTxDetail(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	txid := strings.TrimSpace(c.Param("txid"))
	tx, err := h.svc.Transaction(c.Request.Context(), chain, txid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (h *APIHandler) handleBroadcast(c *gin.Context) {
	chain := chainKey(c.Param("chain"))
	var req struct {
		TxHex string `json:"tx_hex"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TxHex == "" {
		c.JSON(http.StatusBadRequest, models.BroadcastResult{Error: "Broadcast failed"})
		return
	}
	txid, err := h.svc.Broadcast(c.Request.Context(), chain, req.TxHex)
	if err != nil || txid == "" {
		c.JSON(http.StatusBadRequest, models.BroadcastResult{Error: "Broadcast failed"})
		return
	}
	c.JSON(http.StatusOK, models.BroadcastResult{Success: true, Txid: txid})
}
