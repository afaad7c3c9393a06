package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long access tokens stay valid.
const DefaultTokenTTL = 60 * time.Minute

// ErrMissingSecret is returned when token operations run without a
// configured signing secret.
var ErrMissingSecret = errors.New("jwt secret is required")

// Claims is the access token payload.
type Claims struct {
	Roles      []string `json:"roles"`
	Department string   `json:"department"`
	jwt.RegisteredClaims
}

// CreateAccessToken signs an HS256 access token for a user.
func CreateAccessToken(secret, subject string, roles []string, department string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now().UTC()
	claims := Claims{
		Roles:      roles,
		Department: department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// DecodeAccessToken verifies an HS256 access token and returns its claims.
func DecodeAccessToken(secret, tokenString string) (*Claims, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
