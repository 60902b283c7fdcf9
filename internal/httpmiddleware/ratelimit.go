package httpmiddleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"

	"campusattendance/internal/auth"
)

// KeyFunc picks the bucket a request draws from.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by remote address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return "ip:" + ip
	}
	return "ip:unknown"
}

// Caller keys authenticated requests by token subject, so students behind
// one campus NAT do not share a bucket. Anonymous requests fall back to IP.
func Caller(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		return "user:" + claims.Subject
	}
	return ClientIP(c)
}

// TokenBucket is an in-process limiter with continuous refill. Limits that
// must hold across replicas use WindowLimiter.
type TokenBucket struct {
	capacity float64
	perSec   float64
	key      KeyFunc
	clock    clock.Clock
	idle     time.Duration

	mu        sync.Mutex
	state     map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket allows bursts of capacity and refills perMinute tokens a
// minute per key. A nil key means ClientIP; a nil clk means the wall clock.
func NewTokenBucket(capacity, perMinute int, key KeyFunc, clk clock.Clock) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	if key == nil {
		key = ClientIP
	}
	if clk == nil {
		clk = clock.New()
	}
	perSec := float64(perMinute) / 60
	idle := 10 * time.Minute
	if perSec > 0 {
		// A bucket idle this long is full again and can be forgotten.
		idle = max(idle, time.Duration(float64(capacity)/perSec*float64(time.Second)))
	}
	return &TokenBucket{
		capacity:  float64(capacity),
		perSec:    perSec,
		key:       key,
		clock:     clk,
		idle:      idle,
		state:     make(map[string]*bucket),
		lastSweep: clk.Now(),
	}
}

// GinMiddleware rejects with 429 and a Retry-After hint once a key's bucket
// is empty.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := l.take(l.key(c))
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// take spends one token for key, or reports how long until one is available.
func (l *TokenBucket) take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	l.sweep(now)

	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.state[key] = b
	}
	b.tokens = math.Min(l.capacity, b.tokens+now.Sub(b.last).Seconds()*l.perSec)
	b.last = now
	if b.tokens < 1 {
		if l.perSec <= 0 {
			return false, time.Minute
		}
		return false, time.Duration((1 - b.tokens) / l.perSec * float64(time.Second))
	}
	b.tokens--
	return true, 0
}

func (l *TokenBucket) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for k, b := range l.state {
		if now.Sub(b.last) >= l.idle {
			delete(l.state, k)
		}
	}
	l.lastSweep = now
}
