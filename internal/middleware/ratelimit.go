// AngelaMos | 2026
// ratelimit.go

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
)

const keyPrefix = "rl:"

type RateLimitConfig struct {
	Limit   redis_rate.Limit
	KeyFunc func(*http.Request) string
	// FailOpen keeps limiting on per-instance buckets while Redis is
	// unreachable. Without it requests are refused with 503.
	FailOpen   bool
	BypassFunc func(*http.Request) bool
}

type RateLimiter struct {
	buckets *bucketStore
	config  RateLimitConfig
}

func NewRateLimiter(rdb *redis.Client, cfg RateLimitConfig) *RateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = KeyByIP
	}

	return &RateLimiter{
		buckets: newBucketStore(rdb),
		config:  cfg,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.config.BypassFunc != nil && rl.config.BypassFunc(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := rl.config.KeyFunc(r)
		res, err := rl.buckets.allow(r.Context(), key, rl.config.Limit, rl.config.FailOpen)
		if err != nil {
			slog.ErrorContext(r.Context(), "rate limiter unavailable",
				"key", key,
				"error", err,
			)
			core.JSONError(w, core.NewAppError(
				err,
				"rate limiter unavailable",
				http.StatusServiceUnavailable,
				"SERVICE_UNAVAILABLE",
			))
			return
		}

		if !admit(w, res, rl.config.Limit) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

type TierConfig struct {
	RequestsPerMinute int
	BurstSize         int
}

var DefaultTiers = map[string]TierConfig{
	"free":    {RequestsPerMinute: 60, BurstSize: 10},
	"weekly":  {RequestsPerMinute: 300, BurstSize: 50},
	"monthly": {RequestsPerMinute: 600, BurstSize: 100},
	"admin":   {RequestsPerMinute: 6000, BurstSize: 1000},
}

// TieredRateLimiter limits authenticated traffic per account, sized by the
// subscription tier carried in the principal. It must run after
// Authenticator. Unknown tiers get the free allowance.
func TieredRateLimiter(
	rdb *redis.Client,
	tiers map[string]TierConfig,
) func(http.Handler) http.Handler {
	buckets := newBucketStore(rdb)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tier := principalTier(r.Context())

			tc, ok := tiers[tier]
			if !ok {
				tier = "free"
				tc = tiers[tier]
			}
			limit := PerWindow(tc.RequestsPerMinute, tc.BurstSize, time.Minute)

			//nolint:errcheck // fail-open never errors
			res, _ := buckets.allow(r.Context(), KeyByUser(r)+":"+tier, limit, true)

			w.Header().Set("X-RateLimit-Tier", tier)
			if !admit(w, res, limit) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func principalTier(ctx context.Context) string {
	if IsAdmin(ctx) {
		return "admin"
	}
	if tier := GetUserTier(ctx); tier != "" {
		return tier
	}
	return "free"
}

func PerWindow(rate, burst int, window time.Duration) redis_rate.Limit {
	if window <= 0 {
		window = time.Minute
	}
	return redis_rate.Limit{
		Rate:   rate,
		Burst:  burst,
		Period: window,
	}
}

// admit writes the rate limit headers and, when the bucket is empty, the
// 429 response. It reports whether the request may proceed.
func admit(w http.ResponseWriter, res *redis_rate.Result, limit redis_rate.Limit) bool {
	h := w.Header()
	resetSecs := int(res.ResetAfter.Seconds())

	h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Rate))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.ResetAfter).Unix(), 10))
	h.Set("RateLimit-Policy", fmt.Sprintf("%d;w=%d", limit.Rate, int(limit.Period.Seconds())))
	h.Set("RateLimit", fmt.Sprintf("%d;t=%d", res.Remaining, resetSecs))

	if res.Allowed > 0 {
		return true
	}

	retryAfter := max(int(res.RetryAfter.Seconds()), 1)
	h.Set("Retry-After", strconv.Itoa(retryAfter))

	core.JSONError(w, core.NewAppError(
		nil,
		fmt.Sprintf("Rate limit exceeded. Retry after %d seconds.", retryAfter),
		http.StatusTooManyRequests,
		"RATE_LIMITED",
	).WithDetail("retry_after", retryAfter))
	return false
}

func KeyByIP(r *http.Request) string {
	return keyPrefix + "ip:" + ClientIP(r)
}

func KeyByUser(r *http.Request) string {
	if accountID := GetUserID(r.Context()); accountID != "" {
		return keyPrefix + "account:" + accountID
	}
	return KeyByIP(r)
}

// KeyByUserAndEndpoint collapses id path segments so /users/<a> and
// /users/<b> share a bucket.
func KeyByUserAndEndpoint(r *http.Request) string {
	return KeyByUser(r) + ":" + normalizeEndpoint(r.URL.Path)
}

func normalizeEndpoint(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if isIdentifier(part) {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func isIdentifier(segment string) bool {
	if segment == "" {
		return false
	}
	if _, err := uuid.Parse(segment); err == nil && len(segment) == 36 {
		return true
	}
	_, err := strconv.ParseUint(segment, 10, 64)
	return err == nil
}

// ClientIP prefers the proxy-appended (last) X-Forwarded-For hop.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		return strings.TrimSpace(hops[len(hops)-1])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bucketStore is the GCRA limiter in Redis with per-instance token buckets
// behind it.
type bucketStore struct {
	redis *redis_rate.Limiter
	local *localBuckets
}

func newBucketStore(rdb *redis.Client) *bucketStore {
	return &bucketStore{
		redis: redis_rate.NewLimiter(rdb),
		local: newLocalBuckets(),
	}
}

func (b *bucketStore) allow(
	ctx context.Context,
	key string,
	limit redis_rate.Limit,
	fallback bool,
) (*redis_rate.Result, error) {
	res, err := b.redis.Allow(ctx, key, limit)
	if err == nil {
		return res, nil
	}
	if !fallback {
		return nil, fmt.Errorf("redis rate limit: %w", err)
	}

	slog.WarnContext(ctx, "rate limiter degraded to local buckets", "error", err)
	return b.local.allow(key, limit, time.Now()), nil
}

const (
	localSweepInterval = 5 * time.Minute
	localEntryTTL      = 10 * time.Minute
)

type localBucket struct {
	limiter  *rate.Limiter
	limit    redis_rate.Limit
	lastSeen time.Time
}

type localBuckets struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastSweep time.Time
}

func newLocalBuckets() *localBuckets {
	return &localBuckets{
		buckets:   make(map[string]*localBucket),
		lastSweep: time.Now(),
	}
}

func (l *localBuckets) allow(key string, limit redis_rate.Limit, now time.Time) *redis_rate.Result {
	perSecond := float64(limit.Rate) / limit.Period.Seconds()
	interval := time.Duration(float64(time.Second) / perSecond)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= localSweepInterval {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok || b.limit != limit {
		b = &localBucket{
			limiter: rate.NewLimiter(rate.Limit(perSecond), limit.Burst),
			limit:   limit,
		}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := &redis_rate.Result{
		Limit:      limit,
		RetryAfter: -1,
		ResetAfter: interval,
	}
	if b.limiter.AllowN(now, 1) {
		res.Allowed = 1
	} else {
		res.RetryAfter = interval
	}
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)

	return res
}

// sweep drops idle buckets. Callers hold mu.
func (l *localBuckets) sweep(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > localEntryTTL {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}
