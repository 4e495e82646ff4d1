// Package auth issues and validates bearer tokens for the Control API.
//
// Medea's Control API has a single operator, not per-user sessions, so this
// is deliberately narrower than a full access/refresh token pair: one
// long-lived signed token scoped to "control-api" is issued out of band
// and validated on every Control API request.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTService struct {
	secret []byte
	ttl    time.Duration
}

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const ControlAPIScope = "control-api"

func NewJWTService(secret string, ttl time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), ttl: ttl}
}

// IssueControlAPIToken mints a bearer token for operator tooling. The
// running server never calls this itself; it is exposed for operator
// tooling and for tests.
func (s *JWTService) IssueControlAPIToken() (string, error) {
	now := time.Now()
	claims := Claims{
		Scope: ControlAPIScope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing control API token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) ValidateControlAPIToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Scope != ControlAPIScope {
		return nil, fmt.Errorf("token missing control-api scope")
	}

	return claims, nil
}
