package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
	"github.com/iho/bondtab/internal/usecase/mocks"
)

func postWithKey(key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", bytes.NewBufferString(`{}`))
	req.Header.Set(IdempotencyKeyHeader, key)
	return req
}

func TestIdempotencyMiddleware_StoreErrorFailsClosed(t *testing.T) {
	var called bool
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		return false, nil, context.DeadlineExceeded
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})).ServeHTTP(rr, postWithKey("key-err"))

	if called {
		t.Fatalf("handler should not be called when store errors")
	}
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "idempotency_unavailable") {
		t.Fatalf("expected idempotency_unavailable code, got %s", rr.Body.String())
	}
}

func TestIdempotencyMiddleware_ReleasesFailedResponses(t *testing.T) {
	var released string
	store := mocks.NewMockIdempotencyStore()
	store.UpdateFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) error {
		t.Fatalf("failed response must not be stored")
		return nil
	}
	store.ReleaseFunc = func(ctx context.Context, key string) error {
		released = key
		return nil
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})).ServeHTTP(rr, postWithKey("key-fail"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.HasSuffix(released, "|key-fail") {
		t.Fatalf("expected key to be released, got %q", released)
	}
}

func TestIdempotencyMiddleware_ReplaysStoredResponse(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, m, zerolog.Nop())

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":1}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, postWithKey("key-ok"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, postWithKey("key-ok"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != `{"id":1}` {
		t.Fatalf("unexpected replay %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(ReplayHeader) != "true" {
		t.Fatalf("expected replay header")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type to be replayed, got %q", second.Header().Get("Content-Type"))
	}
	if got := testutil.ToFloat64(m.IdempotentHits); got != 1 {
		t.Fatalf("expected 1 idempotent hit, got %v", got)
	}
}

func TestIdempotencyMiddleware_StoredFormat(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, 0, nil, zerolog.Nop())

	req := postWithKey("key-fmt")
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	})).ServeHTTP(httptest.NewRecorder(), req)

	raw, ok := store.Get(scopeKey(req, "key-fmt"))
	if !ok {
		t.Fatalf("expected response to be stored")
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatalf("stored value is not a response: %v", err)
	}
	if stored.Status != http.StatusOK || string(stored.Body) != "done" {
		t.Fatalf("unexpected stored response %+v", stored)
	}
}

func TestIdempotencyMiddleware_InProgress(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	req := postWithKey("key-busy")
	if _, _, err := store.CheckAndSet(context.Background(), scopeKey(req, "key-busy"), nil, time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, nil, zerolog.Nop())

	rr := httptest.NewRecorder()
	mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run while the key is pending")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "idempotency_in_progress") {
		t.Fatalf("expected 409 idempotency_in_progress, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestIdempotencyMiddleware_KeysScopedByCaller(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	mw := NewIdempotencyMiddleware(store, time.Hour, nil, zerolog.Nop())

	calls := 0
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for _, hex := range []string{"0x0a11", "0x0b0b"} {
		req := postWithKey("shared")
		req = req.WithContext(domain.WithCaller(req.Context(), common.HexToAddress(hex)))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if calls != 2 {
		t.Fatalf("expected each caller to get its own key, handler ran %d times", calls)
	}
}

func TestIdempotencyMiddleware_SkipsReadsAndMissingKey(t *testing.T) {
	store := mocks.NewMockIdempotencyStore()
	store.CheckAndSetFunc = func(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
		t.Fatalf("store should not be consulted")
		return false, nil, nil
	}
	mw := NewIdempotencyMiddleware(store, time.Hour, nil, zerolog.Nop())
	handler := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	get := httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil)
	get.Header.Set(IdempotencyKeyHeader, "k")
	handler.ServeHTTP(httptest.NewRecorder(), get)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/groups", nil))
}
