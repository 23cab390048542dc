package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/auth"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
)

const aliceHex = "0x0000000000000000000000000000000000000A11"

// callerEcho responds with the caller address, or "anonymous".
func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := domain.CallerFromContext(r.Context())
		if !ok {
			w.Write([]byte("anonymous"))
			return
		}
		w.Write([]byte(caller.Hex()))
	})
}

func TestAuthenticator_HeaderMode(t *testing.T) {
	a := NewAuthenticator(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, aliceHex)
	rr := httptest.NewRecorder()
	a.Wrap(callerEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Body.String() != common.HexToAddress(aliceHex).Hex() {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	a.Wrap(callerEcho()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous request, got %s", rr.Body.String())
	}
}

func TestAuthenticator_HeaderModeRejectsBadAddress(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	a := NewAuthenticator(nil, m)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, "alice")
	rr := httptest.NewRecorder()
	a.Wrap(callerEcho()).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "invalid_address") {
		t.Fatalf("expected 401 invalid_address, got %d %s", rr.Code, rr.Body.String())
	}
	if got := testutil.ToFloat64(m.AuthFailures.WithLabelValues("invalid_address")); got != 1 {
		t.Fatalf("expected one auth failure, got %v", got)
	}
}

func TestAuthenticator_JWTMode(t *testing.T) {
	jwt := auth.NewJWTManager("secret", time.Hour)
	a := NewAuthenticator(jwt, nil)
	alice := common.HexToAddress(aliceHex)

	token, err := jwt.Generate(alice)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	a.Wrap(callerEcho()).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != alice.Hex() {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}

	// the caller header is ignored once tokens are required
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerHeader, aliceHex)
	rr = httptest.NewRecorder()
	a.Wrap(callerEcho()).ServeHTTP(rr, req)
	if rr.Body.String() != "anonymous" {
		t.Fatalf("expected header to be ignored, got %s", rr.Body.String())
	}
}

func TestAuthenticator_JWTFailures(t *testing.T) {
	expired, err := auth.NewJWTManager("secret", -time.Minute).Generate(common.HexToAddress(aliceHex))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	forged, err := auth.NewJWTManager("other", time.Hour).Generate(common.HexToAddress(aliceHex))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"not bearer", "Basic abc", "invalid_token"},
		{"garbage", "Bearer abc", "invalid_token"},
		{"wrong secret", "Bearer " + forged, "invalid_token"},
		{"expired", "Bearer " + expired, "expired_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(auth.NewJWTManager("secret", time.Hour), nil)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rr := httptest.NewRecorder()
			a.Wrap(callerEcho()).ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), `"code":"`+tt.code+`"`) {
				t.Fatalf("expected code %s, got %s", tt.code, rr.Body.String())
			}
		})
	}
}
