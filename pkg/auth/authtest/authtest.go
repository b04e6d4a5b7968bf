// Package authtest mints shopper tokens the way the account service does, for
// handler and middleware tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

// Token signs a token for userID valid from issuedAt for ttl.
func Token(t testing.TB, cfg config.JWTConfig, userID uuid.UUID, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	return Sign(t, cfg.Secret, auth.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
}

// Sign signs arbitrary claims so tests can build malformed identities.
func Sign(t testing.TB, secret string, claims auth.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(auth.SigningMethod, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
