package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
	"github.com/iho/bondtab/internal/usecase"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency keys.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayHeader marks a response served from the idempotency store.
	ReplayHeader = "X-Idempotency-Replay"

	// DefaultIdempotencyTTL is used when no TTL is configured.
	DefaultIdempotencyTTL = 24 * time.Hour

	// pendingResponse is what the store holds while the first request runs.
	pendingResponse = "processing"
)

// storedResponse is the cached form of a successful response.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// IdempotencyMiddleware replays the first successful response to a mutating
// request for every retry carrying the same key. Keys are scoped to the
// caller, method and path, so two callers never share a key.
type IdempotencyMiddleware struct {
	store   usecase.IdempotencyStore
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewIdempotencyMiddleware creates a new IdempotencyMiddleware. m may be nil.
func NewIdempotencyMiddleware(store usecase.IdempotencyStore, ttl time.Duration, m *metrics.Metrics, logger zerolog.Logger) *IdempotencyMiddleware {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyMiddleware{store: store, ttl: ttl, metrics: m, logger: logger}
}

// Wrap wraps an http.Handler with idempotency checking.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodDelete {
			next.ServeHTTP(w, r)
			return
		}

		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		scoped := scopeKey(r, key)

		exists, cached, err := m.store.CheckAndSet(r.Context(), scoped, nil, m.ttl)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("idempotency check failed")
			writeError(w, http.StatusInternalServerError, "idempotency check failed", "idempotency_unavailable")
			return
		}

		if exists {
			m.replay(w, key, cached)
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			body:           &bytes.Buffer{},
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)

		// Failed requests release the key so the client may retry them.
		if recorder.statusCode < 200 || recorder.statusCode >= 300 {
			if err := m.store.Release(r.Context(), scoped); err != nil {
				m.logger.Warn().Err(err).Str("key", key).Msg("failed to release idempotency key")
			}
			return
		}

		stored, err := json.Marshal(storedResponse{
			Status:      recorder.statusCode,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.body.Bytes(),
		})
		if err == nil {
			err = m.store.Update(r.Context(), scoped, stored, m.ttl)
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("key", key).Msg("failed to store idempotent response")
		}
	})
}

func (m *IdempotencyMiddleware) replay(w http.ResponseWriter, key string, cached []byte) {
	if len(cached) == 0 || string(cached) == pendingResponse {
		writeError(w, http.StatusConflict, "a request with this idempotency key is in progress", "idempotency_in_progress")
		return
	}

	var stored storedResponse
	if err := json.Unmarshal(cached, &stored); err != nil {
		m.logger.Error().Err(err).Str("key", key).Msg("corrupt idempotent response")
		writeError(w, http.StatusInternalServerError, "idempotency check failed", "idempotency_unavailable")
		return
	}

	if m.metrics != nil {
		m.metrics.IdempotentHits.Inc()
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write(stored.Body)
}

func scopeKey(r *http.Request, key string) string {
	caller := "anonymous"
	if addr, ok := domain.CallerFromContext(r.Context()); ok {
		caller = addr.Hex()
	}
	return strings.Join([]string{caller, r.Method, r.URL.Path, key}, "|")
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
