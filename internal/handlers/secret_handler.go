package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/cachedclient"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/classify"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/config"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/metrics"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/middleware"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/models"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/pacer"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
)

// SecretHandler handles HTTP requests for secret lookups against a
// resolved tenant's cache.
type SecretHandler struct {
	pacer  *pacer.Pacer
	cache  *config.CacheConfig
	logger *logrus.Entry
}

// NewSecretHandler creates a new secret handler.
func NewSecretHandler(p *pacer.Pacer, cache *config.CacheConfig, logger *logrus.Entry) *SecretHandler {
	return &SecretHandler{pacer: p, cache: cache, logger: logger}
}

func (h *SecretHandler) clientFor(tenant *registry.Tenant) *cachedclient.Client {
	return cachedclient.New(tenant, h.pacer, h.logger, h.cache.ParseSecretValues, h.cache.RefreshKeyMapOnMiss)
}

// GetByID handles GET /id/:uuid.
func (h *SecretHandler) GetByID(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	id := c.Param("uuid")

	res, err := h.clientFor(tenant).GetByID(c.Request.Context(), id)
	if err != nil {
		metrics.RecordMiss("secret")
		h.renderError(c, err)
		return
	}
	recordLookup("secret", res.Hit)
	c.JSON(http.StatusOK, models.SecretResponse{ID: res.ID, Key: res.Key, Value: renderValue(res)})
}

// GetByKey handles GET /key/:key.
func (h *SecretHandler) GetByKey(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	key := c.Param("key")

	res, err := h.clientFor(tenant).GetByKey(c.Request.Context(), key)
	if err != nil {
		metrics.RecordMiss("key")
		h.renderError(c, err)
		return
	}
	recordLookup("key", res.Hit)
	c.JSON(http.StatusOK, models.SecretResponse{ID: res.ID, Key: res.Key, Value: renderValue(res)})
}

// recordLookup ticks cache_hits only for a lookup genuinely served from
// the cache; anything that required a fetch-through (Pacer round trip or
// list_all) is a cache_miss, regardless of whether it ultimately
// succeeded (spec §7, scenario S1).
func recordLookup(lookupType string, hit bool) {
	if hit {
		metrics.RecordHit(lookupType)
		return
	}
	metrics.RecordMiss(lookupType)
}

// Reset handles GET /reset: clears the caller's tenant cache and reports
// the sizes observed immediately before clearing.
func (h *SecretHandler) Reset(c *gin.Context) {
	tenant := middleware.GetTenant(c)
	before := h.clientFor(tenant).Reset()
	c.JSON(http.StatusOK, models.ResetResponse{SecretsCleared: before.SecretCount, KeysCleared: before.KeymapCount})
}

// Stats handles GET /stats: a registry-wide view, not scoped to a single
// tenant (no bearer token is required for this route).
func (h *SecretHandler) Stats(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := reg.Snapshot()
		tenants := make([]models.TenantStats, 0, len(snapshot))
		for _, t := range snapshot {
			stats := t.Cache.Stats()
			tenants = append(tenants, models.TenantStats{
				Tenant:      string(t.Fingerprint),
				SecretCount: stats.SecretCount,
				KeymapCount: stats.KeymapCount,
				State:       stateString(t.State()),
			})
			metrics.SetCacheSize(string(t.Fingerprint), stats.SecretCount, stats.KeymapCount)
		}
		metrics.SetNumClients(len(snapshot))
		c.JSON(http.StatusOK, models.StatsResponse{TenantCount: len(snapshot), Tenants: tenants})
	}
}

func stateString(s registry.State) string {
	if s == registry.Quarantined {
		return "quarantined"
	}
	return "healthy"
}

func renderValue(res cachedclient.Result) any {
	if res.Decoded == nil {
		return res.Raw
	}
	if res.Decoded.Mapping != nil {
		return res.Decoded.Mapping
	}
	if res.Decoded.Sequence != nil {
		return res.Decoded.Sequence
	}
	if res.Decoded.String != nil {
		return *res.Decoded.String
	}
	return nil
}

// renderError maps a classified error onto the status table in §6.
func (h *SecretHandler) renderError(c *gin.Context, err error) {
	var ce *classify.Error
	if !errors.As(err, &ce) {
		h.logger.WithError(err).Error("unclassified error serving secret request")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "Unknown", Message: err.Error()})
		return
	}

	status := statusFor(ce.Kind)
	if status >= 500 {
		h.logger.WithError(ce).Error("secret request failed")
	}
	c.JSON(status, models.ErrorResponse{Error: ce.Kind.String(), Message: ce.Message})
}

func statusFor(kind classify.Kind) int {
	switch kind {
	case classify.Unauthorized, classify.InvalidToken:
		return http.StatusUnauthorized
	case classify.RateLimited:
		return http.StatusTooManyRequests
	case classify.MissingSecret, classify.UnknownKey, classify.UnknownOrg:
		return http.StatusNotFound
	case classify.InvalidSecretId:
		return http.StatusBadRequest
	case classify.Transport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
