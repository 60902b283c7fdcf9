package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattendance/internal/auth"
)

func TestTokenBucketRefills(t *testing.T) {
	clk := clock.NewMock()
	l := NewTokenBucket(2, 60, nil, clk)

	ok, _ := l.take("ip:1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.take("ip:1.2.3.4")
	assert.True(t, ok)
	ok, wait := l.take("ip:1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
	ok, _ = l.take("ip:5.6.7.8")
	assert.True(t, ok)

	clk.Add(500 * time.Millisecond)
	ok, _ = l.take("ip:1.2.3.4")
	assert.False(t, ok, "half a token is not enough")

	clk.Add(500 * time.Millisecond)
	ok, _ = l.take("ip:1.2.3.4")
	assert.True(t, ok)
	ok, _ = l.take("ip:1.2.3.4")
	assert.False(t, ok)
}

func TestTokenBucketForgetsIdleKeys(t *testing.T) {
	clk := clock.NewMock()
	l := NewTokenBucket(1, 60, nil, clk)
	l.take("ip:1.2.3.4")
	require.Len(t, l.state, 1)

	clk.Add(11 * time.Minute)
	l.take("ip:5.6.7.8")
	assert.Len(t, l.state, 1)
	assert.Contains(t, l.state, "ip:5.6.7.8")
}

func TestTokenBucketMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewTokenBucket(1, 1, ClientIP, clock.NewMock()).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestTokenBucketKeysOnCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)
	const key, issuer = "test-key", "campus"
	r := gin.New()
	throttle := NewTokenBucket(1, 1, Caller, clock.NewMock()).GinMiddleware()
	r.GET("/me", auth.Authenticate(key, issuer), throttle, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/open", throttle, func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(path, subject string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5000"
		if subject != "" {
			tok, _, err := auth.Issue(subject, "STUDENT", "", issuer, key, time.Hour)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// Same address, different students: separate buckets.
	assert.Equal(t, http.StatusOK, call("/me", "stu-1"))
	assert.Equal(t, http.StatusOK, call("/me", "stu-2"))
	assert.Equal(t, http.StatusTooManyRequests, call("/me", "stu-1"))

	// Anonymous callers share the address bucket.
	assert.Equal(t, http.StatusOK, call("/open", ""))
	assert.Equal(t, http.StatusTooManyRequests, call("/open", ""))
}

type memCounter struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func (m *memCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits[key]++
	return m.hits[key], nil
}

func TestWindowLimiterPerKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	counter := &memCounter{hits: map[string]int64{}}
	l := NewWindowLimiter(counter, "mark", 2, time.Minute, func(c *gin.Context) string {
		return c.GetHeader("X-Student")
	})
	r := gin.New()
	r.POST("/mark", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	call := func(student string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/mark", nil)
		req.Header.Set("X-Student", student)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, call("a").Code)
	assert.Equal(t, http.StatusOK, call("a").Code)
	w := call("a")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("b").Code)
	assert.Equal(t, int64(3), counter.hits["mark:a"])

	// Anonymous callers are left to the IP limiter.
	assert.Equal(t, http.StatusOK, call("").Code)
}

func TestWindowLimiterFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := NewWindowLimiter(&memCounter{err: errors.New("redis down")}, "mark", 1, time.Minute, func(c *gin.Context) string { return "a" })
	r := gin.New()
	r.POST("/mark", l.GinMiddleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/mark", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
