package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	corsMaxAgeHours = 12

	// HeaderMonitorToken carries the shared secret for protected routes.
	HeaderMonitorToken = "X-Monitor-Token"
)

// getCORSOrigins returns the list of allowed CORS origins. The CORS_ORIGINS
// environment variable wins over the configured list, then defaults.
func getCORSOrigins(configured []string) []string {
	if corsOrigins := os.Getenv("CORS_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	if len(configured) > 0 {
		return configured
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:3002", // Unified dashboard frontend
	}
}

// corsMiddleware creates a CORS middleware
func corsMiddleware(configured []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: getCORSOrigins(configured),
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Content-Length", "Accept-Encoding",
			"X-CSRF-Token", "Authorization", "accept", "origin",
			"Cache-Control", "X-Requested-With", HeaderMonitorToken,
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeHours * time.Hour,
	})
}

// authMiddleware rejects requests whose shared-secret header does not match
// the configured token. Comparison is constant-time over digests so neither
// content nor length leaks.
func authMiddleware(token string) gin.HandlerFunc {
	expected := sha256.Sum256([]byte(token))

	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "monitor auth token is not configured",
			})
			return
		}

		presented := sha256.Sum256([]byte(c.GetHeader(HeaderMonitorToken)))
		if subtle.ConstantTimeCompare(expected[:], presented[:]) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or missing monitor token",
			})
			return
		}

		c.Next()
	}
}
