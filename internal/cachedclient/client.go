// Package cachedclient exposes the public surface an HTTP handler calls
// into: get-by-id, get-by-key, reset and stats (spec §4.8). It is the
// only package that combines the registry, the tenant cache and the
// pacer into one request-shaped API.
package cachedclient

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/classify"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/decode"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/pacer"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/tenantcache"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

// Result is a fully resolved secret, ready to serialize into a response.
// Hit reports whether the lookup was served straight from the cache
// (true) or required a fetch-through, e.g. a Pacer round trip or a
// list_all (false) — the distinction the cache_hits/cache_miss metrics
// key off (spec §7, scenario S1), not whether the call succeeded.
type Result struct {
	ID      string
	Key     string
	Raw     string
	Hit     bool
	Decoded *secretmeta.DecodedValue
}

// Client combines a tenant's cache with the shared pacer for on-demand
// upstream fetches. One Client per resolved tenant, built per-request
// from the registry; it holds no state of its own.
type Client struct {
	tenant             *registry.Tenant
	pacer              *pacer.Pacer
	logger             *logrus.Entry
	parseValues        bool
	refreshKeyMapOnMiss bool
}

// New builds a client bound to one tenant. refreshKeyMapOnMiss enables
// the opt-in policy where a key-map miss triggers a list_all before
// reporting UnknownKey, rather than failing fast (supplemental to the
// core protocol).
func New(tenant *registry.Tenant, p *pacer.Pacer, logger *logrus.Entry, parseValues, refreshKeyMapOnMiss bool) *Client {
	return &Client{
		tenant:              tenant,
		pacer:               p,
		logger:              logger,
		parseValues:         parseValues,
		refreshKeyMapOnMiss: refreshKeyMapOnMiss,
	}
}

// GetByID resolves a secret directly by its upstream id. A cache hit
// returns immediately; a miss falls through to the pacer for a single
// on-demand upstream fetch, which is itself installed into the cache on
// success so the next lookup is a hit (spec §4.8).
func (c *Client) GetByID(ctx context.Context, id string) (Result, error) {
	if e, ok := c.tenant.Cache.LookupByID(id); ok {
		res := c.toResult(e)
		res.Hit = true
		return res, nil
	}

	entry, found, err := c.pacer.Submit(ctx, c.tenant, id)
	if err != nil {
		return Result{}, classify.Classify(err)
	}
	if !found {
		return Result{}, classify.New(classify.MissingSecret, "404 Not Found: Secret not found: "+id)
	}

	c.tenant.Cache.Install([]secretmeta.Entry{entry})
	return c.toResult(entry), nil
}

// GetByKey resolves a secret by its human-readable key. If the key map
// is empty, a list_all is performed first to populate it (the cache has
// never been synced, or was just reset). A miss against a populated key
// map is UnknownKey unless refreshKeyMapOnMiss is enabled, in which case
// one list_all retry is attempted before giving up (spec §4.8, §9).
func (c *Client) GetByKey(ctx context.Context, key string) (Result, error) {
	if id, ok := c.tenant.Cache.LookupKey(key); ok {
		e, _ := c.tenant.Cache.LookupByID(id)
		res := c.toResult(e)
		res.Hit = true
		return res, nil
	}

	if c.tenant.Cache.KeyMapEmpty() {
		if err := c.listAllInto(ctx); err != nil {
			return Result{}, err
		}
		if id, ok := c.tenant.Cache.LookupKey(key); ok {
			e, _ := c.tenant.Cache.LookupByID(id)
			return c.toResult(e), nil
		}
		return Result{}, classify.New(classify.UnknownKey, "key not found: "+key)
	}

	if c.refreshKeyMapOnMiss {
		if err := c.listAllInto(ctx); err != nil {
			return Result{}, err
		}
		if id, ok := c.tenant.Cache.LookupKey(key); ok {
			e, _ := c.tenant.Cache.LookupByID(id)
			return c.toResult(e), nil
		}
	}

	return Result{}, classify.New(classify.UnknownKey, "key not found: "+key)
}

// listAllInto fetches every secret for this tenant and installs it. The
// cache's refresh lock is held for the whole fetch-then-install sequence
// so a key-map-miss list_all here never runs concurrently with another
// miss or with the background refresh loop's sync_since for the same
// tenant (spec §4.8/§9).
func (c *Client) listAllInto(ctx context.Context) error {
	c.tenant.Cache.LockRefresh()
	defer c.tenant.Cache.UnlockRefresh()

	org := upstream.OrgFingerprint(string(c.tenant.Fingerprint))
	entries, err := c.tenant.Upstream.ListAll(ctx, org)
	if err != nil {
		return classify.Classify(err)
	}
	c.tenant.Cache.Install(entries)
	return nil
}

// Reset clears the tenant's cache, returning the sizes observed
// immediately before clearing.
func (c *Client) Reset() tenantcache.Stats {
	return c.tenant.Cache.Reset()
}

// Stats returns the tenant cache's current sizes.
func (c *Client) Stats() tenantcache.Stats {
	return c.tenant.Cache.Stats()
}

func (c *Client) toResult(e secretmeta.Entry) Result {
	return Result{
		ID:      e.Meta.ID,
		Key:     e.Meta.Key,
		Raw:     e.Raw,
		Decoded: decode.Decode(e.Raw, c.parseValues),
	}
}
