// Package auth resolves the shopper identity from HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const shopperIDKey contextKey = "authShopperID"

var errNoHeader = errors.New("authorization header required")

// GetShopperID retrieves the authenticated subject from context. Anonymous
// requests report false.
func GetShopperID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(shopperIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithShopperID returns ctx carrying shopperID.
func WithShopperID(ctx context.Context, shopperID string) context.Context {
	return context.WithValue(ctx, shopperIDKey, shopperID)
}

// JWTMiddleware rejects requests without a valid bearer token.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	v := newVerifier(secret, audience)
	return func(c *gin.Context) {
		subject, err := v.authenticate(c.Request.Header.Get("Authorization"))
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		authorize(c, subject)
	}
}

// OptionalJWTMiddleware lets requests without an Authorization header through
// anonymously. A header that is present must still carry a valid token.
func OptionalJWTMiddleware(secret, audience string) gin.HandlerFunc {
	v := newVerifier(secret, audience)
	return func(c *gin.Context) {
		subject, err := v.authenticate(c.Request.Header.Get("Authorization"))
		if errors.Is(err, errNoHeader) {
			c.Next()
			return
		}
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		authorize(c, subject)
	}
}

type verifier struct {
	secret   []byte
	audience string
}

func newVerifier(secret, audience string) verifier {
	return verifier{
		secret:   []byte(strings.TrimSpace(secret)),
		audience: strings.TrimSpace(audience),
	}
}

func (v verifier) authenticate(header string) (string, error) {
	tokenString, err := extractBearerToken(header)
	if err != nil {
		return "", err
	}
	if len(v.secret) == 0 {
		return "", errors.New("missing JWT secret")
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	if v.audience != "" && !containsAudience(claims.Audience, v.audience) {
		return "", errors.New("invalid audience")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func authorize(c *gin.Context, subject string) {
	c.Request = c.Request.WithContext(WithShopperID(c.Request.Context(), subject))
	c.Set(string(shopperIDKey), subject)
	c.Next()
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoHeader
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message, "error_kind": "unauthorized"})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
