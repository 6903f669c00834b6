package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/serverhost/internal/config"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"0.0.0.0/0", "https://example.com"}

	if !isOriginAllowed("https://example.com", allowed) {
		t.Fatalf("expected origin to be allowed")
	}

	if !isOriginAllowed("https://anything.local", allowed) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}

	if !isOriginAllowed("", allowed) {
		t.Fatalf("expected empty origin to be allowed")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"0.0.0.0/0"}) {
		t.Fatalf("expected wildcard to be detected")
	}

	if containsWildcard([]string{"https://example.com"}) {
		t.Fatalf("did not expect wildcard to be detected")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(true, 2)
	now := time.Now()
	limiter.now = func() time.Time { return now }
	key := "127.0.0.1"

	for i := range 2 {
		if _, ok := limiter.allow(key); !ok {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	wait, ok := limiter.allow(key)
	if ok {
		t.Fatalf("expected third request to be rate limited")
	}
	if wait <= 0 || wait > 30*time.Second {
		t.Fatalf("unexpected wait %v", wait)
	}

	if _, ok := limiter.allow("10.0.0.1"); !ok {
		t.Fatalf("another client must have its own bucket")
	}

	now = now.Add(30 * time.Second)
	if _, ok := limiter.allow(key); !ok {
		t.Fatalf("expected a token after refill")
	}
	if _, ok := limiter.allow(key); ok {
		t.Fatalf("refill must not exceed elapsed time")
	}
}

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/api/v1/servers", func(c *gin.Context) { c.JSON(http.StatusOK, []string{}) })
	router.GET("/boom", func(c *gin.Context) { panic("boom") })
	return router
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(CORS(config.CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/servers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Fatalf("unexpected allow methods %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin for foreign origin, got %q", got)
	}
}

func TestRateLimitSkipsHealth(t *testing.T) {
	router := newTestRouter(RateLimit(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1}))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("health request %d limited: %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestLoggerAndRecovery(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	router := newTestRouter(Logger(logger), Recovery(logger), SecurityHeaders())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"panic in handler"`) || !strings.Contains(out, `"msg":"http_request"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
	if !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("expected error level for 500: %s", out)
	}
}
