package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// VerifierAuthMiddleware authenticates the possession verifier on the
// proving endpoints via a shared API key.
func VerifierAuthMiddleware(getAPIKey func(verifierID string) (string, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		verifierID := c.GetHeader("X-Verifier-ID")
		apiKey := c.GetHeader("X-API-Key")

		if verifierID == "" || apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			c.Abort()
			return
		}

		expected, err := getAPIKey(verifierID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			c.Abort()
			return
		}

		c.Set("verifier_id", verifierID)
		c.Next()
	}
}
