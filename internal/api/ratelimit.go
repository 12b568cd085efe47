package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Per-IP rate limiting. Redis is the source of truth so multiple
// gateway replicas share one quota; when Redis is not configured (or a
// call fails) a local token bucket takes over for that request.

const (
	rateWindow          = time.Minute
	cleanupIdleDuration = 10 * time.Minute
)

type ipBucket struct {
	tokens   float64
	lastSeen time.Time
	mu       sync.Mutex
}

type RateLimiter struct {
	rdb      *redis.Client // nil means memory-only
	perMin   int
	rate     float64 // tokens added per second
	burst    float64
	mu       sync.Mutex
	buckets  map[string]*ipBucket
	redisLog sync.Once
}

// NewRateLimiter allows perMin requests per minute per client IP. Pass
// a nil Redis client to run purely in memory.
func NewRateLimiter(rdb *redis.Client, perMin int) *RateLimiter {
	rl := &RateLimiter{
		rdb:     rdb,
		perMin:  perMin,
		rate:    float64(perMin) / 60.0,
		burst:   float64(perMin),
		buckets: make(map[string]*ipBucket),
	}
	go rl.cleanupLoop()
	return rl
}

// allow reports whether this request fits the quota, plus how long the
// client should wait when it does not.
func (rl *RateLimiter) allow(c *gin.Context, ip string) (bool, time.Duration) {
	if rl.rdb != nil {
		ok, retry, err := rl.allowRedis(c, ip)
		if err == nil {
			return ok, retry
		}
		rl.redisLog.Do(func() {
			log.Printf("[RATELIMIT] redis unavailable, falling back to local buckets: %v", err)
		})
	}
	return rl.allowLocal(ip)
}

func (rl *RateLimiter) allowRedis(c *gin.Context, ip string) (bool, time.Duration, error) {
	ctx := c.Request.Context()
	key := "ratelimit:" + ip
	n, err := rl.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 1 {
		if err := rl.rdb.Expire(ctx, key, rateWindow).Err(); err != nil {
			return false, 0, err
		}
	}
	if n <= int64(rl.perMin) {
		return true, 0, nil
	}
	ttl, err := rl.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = rateWindow
	}
	return false, ttl, nil
}

func (rl *RateLimiter) allowLocal(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	bucket, ok := rl.buckets[ip]
	if !ok {
		bucket = &ipBucket{tokens: rl.burst}
		rl.buckets[ip] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(bucket.lastSeen).Seconds()
	bucket.tokens += elapsed * rl.rate
	if bucket.tokens > rl.burst {
		bucket.tokens = rl.burst
	}
	bucket.lastSeen = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true, 0
	}
	retryAfter := time.Duration((1.0-bucket.tokens)/rl.rate*1000) * time.Millisecond
	return false, retryAfter
}

// Middleware returns a Gin handler that enforces the rate limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, retryAfter := rl.allow(c, ip)
		if !allowed {
			c.Header("Retry-After", retryAfter.String())
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "Rate limit exceeded",
				"retryAfter": retryAfter.String(),
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// cleanupLoop removes stale local buckets so transient IPs do not grow
// the map without bound.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupIdleDuration)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-cleanupIdleDuration)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			b.mu.Lock()
			idle := b.lastSeen.Before(cutoff)
			b.mu.Unlock()
			if idle {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}
