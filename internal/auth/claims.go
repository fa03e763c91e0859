package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultAccessTokenTTL applies when no TTL is configured.
const DefaultAccessTokenTTL = 15 * time.Minute

// TokenIssuer is the iss claim of every access token.
const TokenIssuer = "mannito-bridge"

// Claims are the JWT claims of an operator access token.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// GenerateAccessToken signs an HS256 access token for op. Tokens are
// stateless; revoking one means rotating the secret.
func GenerateAccessToken(op *Operator, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := time.Now()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   op.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role: op.Role,
	}).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing access token for %s: %w", op.Username, err)
	}
	return signed, nil
}

// ParseToken verifies an access token and returns its claims.
//
// Returns:
//   - *Claims: Subject and role of the operator
//   - error: ErrTokenInvalid for a bad signature, algorithm, issuer, expiry,
//     subject or role
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.Role.rank() == 0 {
		return nil, fmt.Errorf("%w: bad role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
