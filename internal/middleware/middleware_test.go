package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/auth"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/middleware"
)

const testRateBurst = 3

func TestBasicAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	gate, err := auth.NewGate("secret")
	require.NoError(t, err)

	r := gin.New()
	r.Use(middleware.BasicAuth(gate))
	r.GET("/config/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name      string
		setAuth   func(*http.Request)
		wantCode  int
		wantChall bool
	}{
		{
			name:      "no credentials",
			setAuth:   func(*http.Request) {},
			wantCode:  http.StatusUnauthorized,
			wantChall: true,
		},
		{
			name:      "wrong password",
			setAuth:   func(r *http.Request) { r.SetBasicAuth("admin", "nope") },
			wantCode:  http.StatusUnauthorized,
			wantChall: true,
		},
		{
			name:     "any username with the secret",
			setAuth:  func(r *http.Request) { r.SetBasicAuth("whoever", "secret") },
			wantCode: http.StatusNoContent,
		},
		{
			name:     "empty username with the secret",
			setAuth:  func(r *http.Request) { r.SetBasicAuth("", "secret") },
			wantCode: http.StatusNoContent,
		},
		{
			name:      "bearer token",
			setAuth:   func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") },
			wantCode:  http.StatusUnauthorized,
			wantChall: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/config/x", http.NoBody)
			tt.setAuth(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantChall {
				assert.Equal(t, `Basic realm="clickcounter"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestBotFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		ua      string
		wantBot bool
	}{
		{name: "googlebot", ua: "Mozilla/5.0 (compatible; Googlebot/2.1)", wantBot: true},
		{name: "empty user agent", ua: "", wantBot: true},
		{name: "curl", ua: "curl/8.4.0", wantBot: true},
		{name: "browser", ua: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Firefox/120.0", wantBot: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var isBot bool
			r := gin.New()
			r.Use(middleware.BotFilter())
			r.POST("/c", func(c *gin.Context) {
				isBot = middleware.IsBot(c)
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/c", http.NoBody)
			req.Header.Set("User-Agent", tt.ua)
			r.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.wantBot, isBot)
		})
	}
}

func newRateLimitedRouter(store *middleware.LimiterStore) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RateLimiter(store))
	r.POST("/c", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func doClick(r http.Handler, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/c?domain=foobar", http.NoBody)
	req.RemoteAddr = remoteAddr
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// A negligible refill rate makes the burst the whole budget.
	r := newRateLimitedRouter(middleware.NewLimiterStore(0.0001, testRateBurst))

	for i := range testRateBurst {
		if code := doClick(r, "1.2.3.4:1234"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, doClick(r, "1.2.3.4:1234"))
}

func TestRateLimiter_SeparateIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := newRateLimitedRouter(middleware.NewLimiterStore(0.0001, 1))

	assert.Equal(t, http.StatusOK, doClick(r, "1.2.3.4:1234"))
	assert.Equal(t, http.StatusOK, doClick(r, "5.6.7.8:1234"))
	assert.Equal(t, http.StatusTooManyRequests, doClick(r, "1.2.3.4:1234"))
}

func TestLimiterStore_Cleanup(t *testing.T) {
	t.Helper()

	store := middleware.NewLimiterStore(1, 1)
	store.Get("a")
	store.Get("b")
	require.Equal(t, 2, store.Len())

	store.Cleanup(time.Now())
	assert.Equal(t, 2, store.Len())

	store.Cleanup(time.Now().Add(time.Hour))
	assert.Equal(t, 0, store.Len())
}
