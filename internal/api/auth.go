package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
)

const ctxClaimsKey = "jwt_claims"

// AdminAuth accepts HS256 bearer tokens whose role claim equals role.
// Browsers cannot set headers on a websocket handshake, so upgrade requests
// may carry the token in the access_token query parameter instead.
func AdminAuth(secret, role string) gin.HandlerFunc {
	key := []byte(strings.TrimSpace(secret))

	return func(c *gin.Context) {
		raw := requestToken(c)
		if raw == "" || len(key) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return key, nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		if r, _ := claims["role"].(string); r != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}

		c.Set(ctxClaimsKey, claims)
		c.Next()
	}
}

func requestToken(c *gin.Context) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if websocket.IsWebSocketUpgrade(c.Request) {
		return strings.TrimSpace(c.Query("access_token"))
	}
	return ""
}
