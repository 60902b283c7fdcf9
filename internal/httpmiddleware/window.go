package httpmiddleware

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Counter increments a key that expires after window.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter implements Counter with INCR and EXPIRE.
type RedisCounter struct {
	Client *redis.Client
}

func (r RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// WindowLimiter allows limit requests per key in each fixed window. The
// counter is shared, so the limit holds across API replicas.
type WindowLimiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	prefix  string
	key     func(c *gin.Context) string
}

// NewWindowLimiter limits by the value key returns; an empty key is not limited.
func NewWindowLimiter(counter Counter, prefix string, limit int, window time.Duration, key func(c *gin.Context) string) *WindowLimiter {
	return &WindowLimiter{counter: counter, limit: int64(limit), window: window, prefix: prefix, key: key}
}

// GinMiddleware fails open when the counter is unavailable.
func (l *WindowLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		k := l.key(c)
		if k == "" || l.limit <= 0 {
			c.Next()
			return
		}
		n, err := l.counter.Hit(c.Request.Context(), l.prefix+":"+k, l.window)
		if err != nil {
			log.Printf("rate limiter unavailable: %v", err)
			c.Next()
			return
		}
		if n > l.limit {
			c.Header("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attendance requests, slow down"})
			return
		}
		c.Next()
	}
}
