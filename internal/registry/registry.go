// Package registry implements the tenant registry (spec §4.1): a
// fingerprint-keyed map of Tenants, with atomic get-or-create and a
// snapshot operation the refresh loop iterates without holding the
// registry lock.
package registry

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/tenantcache"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

// State is a tenant's coarse health flag, set by the refresh loop.
type State int

const (
	Healthy State = iota
	Quarantined
)

// Tenant is a logical client identified by its fingerprint; it owns an
// isolated cache and upstream adapter (spec §3).
type Tenant struct {
	Fingerprint secretmeta.Key
	Token       string
	Region      secretmeta.Region
	Upstream    upstream.Adapter
	Cache       *tenantcache.Cache

	mu    sync.Mutex
	state State
}

// State reports the tenant's current health.
func (t *Tenant) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetState updates the tenant's health flag.
func (t *Tenant) SetState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

// AdapterFactory builds the upstream adapter for a newly constructed
// tenant. It must not make network calls (spec §4.1: "builds its
// upstream adapter but does not yet talk to the network").
type AdapterFactory func(fingerprint secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter

// Registry maps tenant fingerprint to Tenant, guarded by its own lock.
// The registry lock is never held while calling upstream or while
// holding any TenantCache lock (spec §4.1, §5: strict lock ordering
// Registry → TenantCache, never the reverse).
type Registry struct {
	mu      sync.Mutex
	tenants map[secretmeta.Key]*Tenant

	newAdapter AdapterFactory
	logger     *logrus.Entry

	onRegister func(fingerprint secretmeta.Key)
	onEvict    func(fingerprint secretmeta.Key)
}

// New builds an empty registry. newAdapter is called at most once per
// fingerprint, inside the registry lock, and must not block on network
// I/O.
func New(newAdapter AdapterFactory, logger *logrus.Entry) *Registry {
	return &Registry{
		tenants:    make(map[secretmeta.Key]*Tenant),
		newAdapter: newAdapter,
		logger:     logger,
	}
}

// OnRegister installs a callback invoked (outside any lock) every time a
// new tenant is created. Used to feed the operational audit trail.
func (r *Registry) OnRegister(f func(fingerprint secretmeta.Key)) {
	r.onRegister = f
}

// OnEvict installs a callback invoked (outside any lock) every time a
// tenant is removed.
func (r *Registry) OnEvict(f func(fingerprint secretmeta.Key)) {
	r.onEvict = f
}

// GetOrCreate returns the tenant for (token, region), constructing one on
// first use. Concurrent calls with identical arguments return the same
// Tenant instance (spec §8 property 2): the whole lookup-or-build-and-
// insert sequence runs under the registry lock, so at most one Tenant is
// ever built per fingerprint.
func (r *Registry) GetOrCreate(token string, region secretmeta.Region) *Tenant {
	fp := secretmeta.Fingerprint(token, region)

	r.mu.Lock()
	if t, ok := r.tenants[fp]; ok {
		r.mu.Unlock()
		return t
	}

	t := &Tenant{
		Fingerprint: fp,
		Token:       token,
		Region:      region,
		Upstream:    r.newAdapter(fp, token, region),
		Cache:       tenantcache.New(),
	}
	r.tenants[fp] = t
	r.mu.Unlock()

	r.logger.WithField("tenant", string(fp)).Info("tenant registered")
	if r.onRegister != nil {
		r.onRegister(fp)
	}
	return t
}

// Remove deletes a tenant by fingerprint. Idempotent.
func (r *Registry) Remove(t *Tenant) {
	r.mu.Lock()
	_, existed := r.tenants[t.Fingerprint]
	delete(r.tenants, t.Fingerprint)
	r.mu.Unlock()
	if existed {
		r.logger.WithField("tenant", string(t.Fingerprint)).Warn("tenant evicted")
		if r.onEvict != nil {
			r.onEvict(t.Fingerprint)
		}
	}
}

// Snapshot returns a copy of the current tenants, sufficient for the
// refresh loop to iterate without holding the registry lock.
func (r *Registry) Snapshot() []*Tenant {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tenant, 0, len(r.tenants))
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out
}

// Len reports the number of registered tenants.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tenants)
}
