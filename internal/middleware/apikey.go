package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HashAPIKey returns the hex-encoded SHA-256 digest stored for an API key.
func HashAPIKey(apiKey string) string {
	digest := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(digest[:])
}

// APIKeyLookup resolves an account id to its stored API key hash.
type APIKeyLookup func(accountID string) (string, error)

// Authenticated accepts either a JWT bearer token or an account id plus API
// key pair, so interactive and machine callers share the same routes.
func Authenticated(secret string, getAPIKeyHash APIKeyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if identity, ok := identityFromBearer(c, secret); ok {
			c.Set("identity", identity)
			c.Next()
			return
		}
		if identity, ok := identityFromAPIKey(c, getAPIKeyHash); ok {
			c.Set("identity", identity)
			c.Next()
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid credentials"})
		c.Abort()
	}
}

// GetIdentity extracts the authenticated identity from context
func GetIdentity(c *gin.Context) string {
	identity, _ := c.Get("identity")
	id, _ := identity.(string)
	return id
}

func identityFromAPIKey(c *gin.Context, getAPIKeyHash APIKeyLookup) (string, bool) {
	accountID := c.GetHeader("X-Account-ID")
	apiKey := c.GetHeader("X-API-Key")
	if accountID == "" || apiKey == "" {
		return "", false
	}

	expectedHash, err := getAPIKeyHash(accountID)
	if err != nil || expectedHash == "" {
		return "", false
	}

	presented := HashAPIKey(apiKey)
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expectedHash)) != 1 {
		return "", false
	}
	return accountID, true
}
