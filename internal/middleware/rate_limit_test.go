package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func limitedRouter(rl *RateLimiter) *gin.Engine {
	r := gin.New()
	r.POST("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func post(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":5000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	r := limitedRouter(NewPerMinuteLimiter(3))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, post(r, "10.0.0.1"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, post(r, "10.0.0.1"))

	// other clients keep their own budget
	assert.Equal(t, http.StatusOK, post(r, "10.0.0.2"))
}

func TestRateLimiter_DefaultsNonPositiveRate(t *testing.T) {
	rl := NewPerMinuteLimiter(0)
	assert.Equal(t, 10, rl.burst)
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewPerMinuteLimiter(5)
	rl.getVisitor("10.0.0.1")
	rl.getVisitor("10.0.0.2")

	rl.mtx.Lock()
	rl.visitors["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.mtx.Unlock()

	rl.evict(time.Now())

	rl.mtx.Lock()
	defer rl.mtx.Unlock()
	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.Contains(t, rl.visitors, "10.0.0.2")
}
