package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/iho/bondtab/internal/domain"
	"github.com/iho/bondtab/internal/infrastructure/auth"
	"github.com/iho/bondtab/internal/infrastructure/metrics"
)

// CallerHeader carries the caller address when token auth is disabled.
const CallerHeader = "X-Caller-Address"

// Authenticator establishes the caller address of each request. With a JWT
// manager the address is the token subject; without one it is read from
// CallerHeader. Requests without credentials pass through anonymously and
// handlers that need a caller reject them.
type Authenticator struct {
	jwt     *auth.JWTManager
	metrics *metrics.Metrics
}

// NewAuthenticator creates an Authenticator. jwt may be nil to trust the
// caller header, and m may be nil to skip failure metrics.
func NewAuthenticator(jwt *auth.JWTManager, m *metrics.Metrics) *Authenticator {
	return &Authenticator{jwt: jwt, metrics: m}
}

// Wrap wraps an http.Handler with caller identification.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, present, err := a.identify(r)
		if err != nil {
			reason := domain.ErrorCode(err)
			if a.metrics != nil {
				a.metrics.AuthFailures.WithLabelValues(reason).Inc()
			}
			writeError(w, http.StatusUnauthorized, "authentication failed", reason)
			return
		}
		if present {
			r = r.WithContext(domain.WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) identify(r *http.Request) (common.Address, bool, error) {
	if a.jwt == nil {
		header := r.Header.Get(CallerHeader)
		if header == "" {
			return common.Address{}, false, nil
		}
		addr, err := domain.ParseAddress(header)
		if err != nil {
			return common.Address{}, false, err
		}
		return addr, true, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return common.Address{}, false, nil
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return common.Address{}, false, domain.ErrInvalidToken
	}

	claims, err := a.jwt.Verify(parts[1])
	if err != nil {
		return common.Address{}, false, err
	}
	return claims.Address(), true, nil
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message, Code: code})
}
