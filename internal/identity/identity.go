// Package identity extracts the verified identity from a signed token
// issued by the identity collaborator. No authentication happens here,
// only signature verification.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/parleychat/parley/internal/domain"
)

const ctxKey = "verified_identity"

var ErrNoIdentity = errors.New("no verified identity")

type claims struct {
	Login       string `json:"login"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	jwt.RegisteredClaims
}

// FromToken verifies an HS256 token and maps its claims to an Identity.
func FromToken(token, secret string) (domain.Identity, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("parse identity token: %w", err)
	}
	if !parsed.Valid {
		return domain.Identity{}, errors.New("invalid identity token")
	}
	return domain.NewIdentity(domain.UserID(c.Subject), c.Login, c.DisplayName, c.AvatarURL)
}

// Middleware requires a verified identity on the request, from the
// Authorization header or, for browser websocket clients that cannot set
// headers, a token query parameter.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity token"})
			return
		}
		ident, err := FromToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid identity token"})
			return
		}
		c.Set(ctxKey, ident)
		c.Next()
	}
}

// FromContext returns the identity placed by Middleware.
func FromContext(c *gin.Context) (domain.Identity, error) {
	v, ok := c.Get(ctxKey)
	if !ok {
		return domain.Identity{}, ErrNoIdentity
	}
	ident, ok := v.(domain.Identity)
	if !ok {
		return domain.Identity{}, ErrNoIdentity
	}
	return ident, nil
}
