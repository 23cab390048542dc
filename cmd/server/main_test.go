package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/bondtab/internal/adapter/http/middleware"
	"github.com/iho/bondtab/internal/infrastructure/config"
)

const (
	alice = "0x0000000000000000000000000000000000000A11"
	bob   = "0x0000000000000000000000000000000000000b0B"
)

func loadConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadFiles()
	require.NoError(t, err)
	return cfg
}

func createGroup(t *testing.T, h http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"name":"trip","members":["` + bob + `"],"params":{"min_bond":"10","challenge_window_sec":60,` +
		`"vote_window_sec":60,"settlement_grace_sec":0,"quorum_bps":5000,"slash_bps":1000}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/groups", strings.NewReader(body))
	req.Header.Set(middleware.CallerHeader, alice)
	if key != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_MemoryStorage(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_DRIVER": config.StorageMemory,
		"RATE_LIMIT_RPS": "0",
	})

	a, err := newApp(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()
	assert.Nil(t, a.rateLimiter)

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = createGroup(t, a.handler, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// minting is off by default
	req := httptest.NewRequest(http.MethodPost, "/api/v1/vault/mint", strings.NewReader(`{"to":"`+alice+`","amount":"1"}`))
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bondtab_groups_created_total 1")
}

func TestNewApp_RedisIdempotencyAndStream(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadConfig(t, map[string]string{
		"STORAGE_DRIVER":  config.StorageMemory,
		"REDIS_ENABLED":   "true",
		"REDIS_URL":       "redis://" + mr.Addr(),
		"EVENT_SINK":      config.SinkRedis,
		"OUTBOX_INTERVAL": "10ms",
	})

	a, err := newApp(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer a.Close()

	first := createGroup(t, a.handler, "create-trip")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := createGroup(t, a.handler, "create-trip")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(middleware.ReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.publisher.Start(ctx)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	require.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), cfg.EventStream).Result()
		return err == nil && n > 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewApp_RedisUnavailable(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_DRIVER": config.StorageMemory,
		"REDIS_ENABLED":  "true",
		"REDIS_URL":      "redis://127.0.0.1:1",
	})

	_, err := newApp(context.Background(), cfg, zerolog.Nop(), prometheus.NewRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := loadConfig(t, map[string]string{
		"STORAGE_DRIVER":        config.StorageMemory,
		"HTTP_PORT":             "0",
		"HTTP_SHUTDOWN_TIMEOUT": "1s",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}
