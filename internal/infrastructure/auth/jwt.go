package auth

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/iho/bondtab/internal/domain"
)

const (
	issuer   = "bondtab"
	audience = "bondtab-api"
	// clockSkew tolerated on exp and nbf between token issuer and server.
	clockSkew = 5 * time.Second
)

// Claims carries the caller's address as the token subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Address returns the caller address carried in the subject.
func (c *Claims) Address() common.Address {
	return common.HexToAddress(c.Subject)
}

// JWTManager issues and checks HS256 bearer tokens for member addresses.
type JWTManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTManager(secret string, ttl time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate issues a token for addr that expires after the manager's ttl.
func (m *JWTManager) Generate(addr common.Address) (string, error) {
	issuedAt := m.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify checks signature, issuer, audience and expiry and that the subject
// is an address. It returns domain.ErrExpiredToken for expired tokens and
// domain.ErrInvalidToken for every other failure.
func (m *JWTManager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, domain.ErrExpiredToken
	case err != nil:
		return nil, domain.ErrInvalidToken
	}

	if !common.IsHexAddress(claims.Subject) {
		return nil, domain.ErrInvalidToken
	}
	return claims, nil
}
