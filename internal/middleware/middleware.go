package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/config"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

const (
	KeyRequestID = "request_id"
	KeyTenant    = "tenant"
)

// RequestID middleware adds a unique request ID to each request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(KeyRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// ResolveTenant extracts the bearer token and region headers from the
// request and resolves (or creates) the corresponding tenant, storing it
// in the gin context for handlers to use. A missing bearer token is a 401
// before any registry lookup happens; a missing region with no
// configured default is a 400 (spec §6).
func ResolveTenant(reg *registry.Registry, cfg *config.CacheConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "Unauthorized",
				"message": "Authorization: Bearer <token> header is required",
			})
			return
		}

		region, ok := resolveRegion(c, cfg)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "InvalidRegion",
				"message": "no region configured and none supplied via X-BWS-API-URL/X-BWS-IDENTITY-URL",
			})
			return
		}

		tenant := reg.GetOrCreate(token, region)
		c.Set(KeyTenant, tenant)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// resolveRegion applies spec §6's HTTP surface precedence: a per-request
// X-BWS-Region picks a well-known URL pair the same way BWS_REGION does
// for the config default, X-BWS-API-URL/X-BWS-IDENTITY-URL override
// either of those explicitly, and the configured default applies when
// none of the headers are present.
func resolveRegion(c *gin.Context, cfg *config.CacheConfig) (secretmeta.Region, bool) {
	apiURL, identityURL := cfg.APIURL, cfg.IdentityURL

	if region := c.GetHeader("X-BWS-Region"); region != "" {
		apiURL, identityURL = config.RegionDefaults(region)
	}

	if v := c.GetHeader("X-BWS-API-URL"); v != "" {
		apiURL = v
	}
	if v := c.GetHeader("X-BWS-IDENTITY-URL"); v != "" {
		identityURL = v
	}

	if apiURL == "" || identityURL == "" {
		return secretmeta.Region{}, false
	}
	return secretmeta.Region{APIURL: apiURL, IdentityURL: identityURL}, true
}

// GetTenant retrieves the resolved tenant from context. Handlers behind
// ResolveTenant can assume this always succeeds.
func GetTenant(c *gin.Context) *registry.Tenant {
	val, exists := c.Get(KeyTenant)
	if !exists {
		return nil
	}
	return val.(*registry.Tenant)
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(c *gin.Context) string {
	if val, exists := c.Get(KeyRequestID); exists {
		return val.(string)
	}
	return ""
}

// RequestLogger middleware logs request information.
func RequestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		entry := logger.WithFields(logrus.Fields{
			"status":     statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"latency":    latency,
			"request_id": GetRequestID(c),
		})

		if tenant := GetTenant(c); tenant != nil {
			entry = entry.WithField("tenant", string(tenant.Fingerprint))
		}

		if statusCode >= 500 {
			entry.Error("request completed with error")
		} else if statusCode >= 400 {
			entry.Warn("request completed with client error")
		} else {
			entry.Info("request completed")
		}
	}
}
