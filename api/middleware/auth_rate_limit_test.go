package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRateStore struct {
	mu   sync.Mutex
	hits map[string]int64
	err  error
}

func (m *memoryRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if m.hits == nil {
		m.hits = map[string]int64{}
	}
	m.hits[key]++
	return m.hits[key], nil
}

func throttled(policy AuthRateLimitPolicy, store RateLimiterStore, seen *[]string) http.Handler {
	return AuthRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if seen != nil {
			*seen = append(*seen, string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func authRequest(email, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"secret"}`))
	req.RemoteAddr = ip + ":5678"
	return req
}

func TestAuthRateLimitRestoresBody(t *testing.T) {
	var seen []string
	handler := throttled(AuthRateLimitPolicy{Name: "login", Window: time.Minute, PerIP: 2, PerEmail: 2}, &memoryRateStore{}, &seen)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authRequest("tester@example.com", "1.2.3.4"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, seen, 1)
	assert.Contains(t, seen[0], `"email":"tester@example.com"`)
}

func TestAuthRateLimitPerEmailIgnoresCase(t *testing.T) {
	store := &memoryRateStore{}
	handler := throttled(AuthRateLimitPolicy{Name: "login", Window: time.Minute, PerEmail: 2}, store, nil)

	codes := make([]int, 0, 3)
	for i, email := range []string{"blocked@example.com", "Blocked@Example.com", "BLOCKED@example.com"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authRequest(email, "10.0.0."+strconv.Itoa(i+1)))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	for key := range store.hits {
		assert.NotContains(t, key, "example.com", "raw email leaked into key")
	}
}

func TestAuthRateLimitPerIP(t *testing.T) {
	handler := throttled(AuthRateLimitPolicy{Name: "register", Window: time.Minute, PerIP: 1}, &memoryRateStore{}, nil)

	first, second := httptest.NewRecorder(), httptest.NewRecorder()
	handler.ServeHTTP(first, authRequest("a@example.com", "5.6.7.8"))
	handler.ServeHTTP(second, authRequest("b@example.com", "5.6.7.8"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	handler := throttled(AuthRateLimitPolicy{Window: time.Minute, PerIP: 5}, &memoryRateStore{err: errors.New("redis down")}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authRequest("a@example.com", "5.6.7.8"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	store := &memoryRateStore{}
	handler := throttled(AuthRateLimitPolicy{Name: "login", PerIP: 1}, store, nil)
	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, authRequest("a@example.com", "5.6.7.8"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, store.hits)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "garbage")
	assert.Equal(t, "198.51.100.7", clientIP(req))
}
