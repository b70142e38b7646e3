package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/MrEthical07/authgate/internal/rate"
)

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (time.Duration, error) {
	return 0, errors.New("redis down")
}

func TestThrottlePerClientAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l, err := rate.New(client, rate.Config{Limit: 2, Window: time.Minute})
	if err != nil {
		t.Fatalf("rate.New: %v", err)
	}

	h := Throttle(l, "login", nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	hit := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := hit("198.51.100.7:4000"); rec.Code != http.StatusNoContent {
			t.Fatalf("hit %d: expected 204, got %d", i+1, rec.Code)
		}
	}
	rec := hit("198.51.100.7:4001")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rec.Code)
	}
	if rec := hit("198.51.100.8:4000"); rec.Code != http.StatusNoContent {
		t.Fatalf("other addresses are not affected, got %d", rec.Code)
	}
}

func TestThrottleFailsOpen(t *testing.T) {
	logger := log.New()
	logger.SetOutput(io.Discard)
	h := Throttle(failingLimiter{}, "login", logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected the request to pass, got %d", rec.Code)
	}
}

func TestThrottleNilLimiter(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	if h := Throttle(nil, "login", nil)(next); h == nil {
		t.Fatalf("expected passthrough handler")
	}
}
