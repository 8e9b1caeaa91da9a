// Package auth issues and verifies the identity tokens produced by the upstream
// login flow. The chat hub only needs to learn which user a connection belongs to.
package auth

import (
	"carchat/backend/internal/models"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "carchat-service"

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims carries the identity asserted by a token. The subject is the user id.
type Claims struct {
	Nickname string `json:"nickname,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the chat identity encoded in the claims.
func (c *Claims) Identity() models.Identity {
	return models.Identity{UserID: models.UserID(c.Subject), Nickname: c.Nickname}
}

// Issue signs an HS256 token for id that expires after ttl.
func Issue(secret []byte, id models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Nickname: id.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verifier checks tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for secret.
func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses tokenString and returns its claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
