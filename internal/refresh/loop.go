// Package refresh implements the background incremental-sync loop (spec
// §4.5): one pass over every registered tenant, calling sync_since and
// applying the eviction policy keyed off the classified error kind.
package refresh

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/classify"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/metrics"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
)

// rateLimitBackoff is how long the loop waits before touching a tenant
// again after a 429, rather than evicting it (spec §4.5).
const rateLimitBackoff = 30 * time.Second

// Loop drives the refresh cycle. It holds a registry reference, a logger,
// the refresh interval and the per-tenant rate-limit backoff deadlines;
// all cached secret state lives in the registry and its tenants.
type Loop struct {
	registry        *registry.Registry
	logger          *logrus.Entry
	refreshInterval time.Duration

	backoffUntil map[*registry.Tenant]time.Time
}

// New builds a refresh loop. refreshInterval is the sleep between
// tenants within one pass (spec §4.5 default 10s).
func New(reg *registry.Registry, refreshInterval time.Duration, logger *logrus.Entry) *Loop {
	return &Loop{
		registry:        reg,
		logger:          logger,
		refreshInterval: refreshInterval,
		backoffUntil:    make(map[*registry.Tenant]time.Time),
	}
}

// Run blocks until ctx is canceled, alternating between full passes over the registry
// and a short sleep when the registry is empty (spec §4.5: "If the
// registry is empty, sleep briefly and re-check rather than busy-loop").
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tenants := l.registry.Snapshot()
		if len(tenants) == 0 {
			time.Sleep(1 * time.Second)
			continue
		}

		for _, t := range tenants {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.refreshOne(ctx, t)
			time.Sleep(l.refreshInterval)
		}
	}
}

// refreshOne syncs a single tenant and applies the eviction policy on
// failure. The registry lock is never held here; t.Cache has its own
// lock and is the only thing refreshOne mutates directly.
func (l *Loop) refreshOne(ctx context.Context, t *registry.Tenant) {
	if until, ok := l.backoffUntil[t]; ok && time.Now().Before(until) {
		return
	}

	t.Cache.LockRefresh()
	defer t.Cache.UnlockRefresh()

	watermark := time.Now()
	result, err := t.Upstream.SyncSince(ctx, t.Cache.LastSync())
	if err != nil {
		l.handleError(t, err)
		return
	}

	t.Cache.ApplySync(result.Changes, watermark)
	if t.State() == registry.Quarantined {
		t.SetState(registry.Healthy)
		l.logger.WithField("tenant", string(t.Fingerprint)).Info("tenant recovered")
	}
	delete(l.backoffUntil, t)
}

// handleError applies spec §4.5's per-kind policy:
//   - RateLimited: back off for rateLimitBackoff, keep the tenant and its
//     cached data as-is.
//   - Transport: skip this pass, try again next cycle; no eviction.
//   - InvalidToken, UnknownOrg, Unauthorized, Unknown: quarantine and
//     evict, since the cached data can no longer be trusted to refresh.
func (l *Loop) handleError(t *registry.Tenant, err error) {
	ce := classify.Classify(err)
	fields := logrus.Fields{"tenant": string(t.Fingerprint), "kind": ce.Kind.String()}
	metrics.RecordRefreshError(ce.Kind.String())

	switch ce.Kind {
	case classify.RateLimited:
		l.backoffUntil[t] = time.Now().Add(rateLimitBackoff)
		l.logger.WithFields(fields).Warn("refresh rate limited, backing off")
	case classify.Transport:
		l.logger.WithFields(fields).Warn("refresh transport error, will retry next cycle")
	default:
		t.SetState(registry.Quarantined)
		l.registry.Remove(t)
		delete(l.backoffUntil, t)
		l.logger.WithFields(fields).Error("refresh failed, evicting tenant")
	}
}
