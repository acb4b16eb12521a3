package cachedclient

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/classify"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/pacer"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/tenantcache"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

type fakeAdapter struct {
	listed      []secretmeta.Entry
	listErr     error
	byID        map[string]secretmeta.Entry
	getByIDErr  error
}

func (f *fakeAdapter) Authenticate(ctx context.Context, token, path string) error { return nil }
func (f *fakeAdapter) ListAll(ctx context.Context, org string) ([]secretmeta.Entry, error) {
	return f.listed, f.listErr
}
func (f *fakeAdapter) SyncSince(ctx context.Context, watermark time.Time) (upstream.SyncResult, error) {
	return upstream.SyncResult{}, nil
}
func (f *fakeAdapter) GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error) {
	if f.getByIDErr != nil {
		return secretmeta.Entry{}, false, f.getByIDErr
	}
	e, ok := f.byID[id]
	return e, ok, nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testTenant(a *fakeAdapter) *registry.Tenant {
	return &registry.Tenant{Fingerprint: "fp", Upstream: a, Cache: tenantcache.New()}
}

func TestGetByIDCacheHit(t *testing.T) {
	tenant := testTenant(&fakeAdapter{})
	tenant.Cache.Install([]secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-1", Key: "k"}, Raw: "value"}})

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	res, err := c.GetByID(context.Background(), "id-1")
	assert.NoError(t, err)
	assert.Equal(t, "value", res.Raw)
}

func TestGetByIDMissFallsThroughToPacer(t *testing.T) {
	a := &fakeAdapter{byID: map[string]secretmeta.Entry{
		"id-2": {Meta: secretmeta.Meta{ID: "id-2", Key: "k2"}, Raw: "fetched"},
	}}
	tenant := testTenant(a)

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	res, err := c.GetByID(context.Background(), "id-2")
	assert.NoError(t, err)
	assert.Equal(t, "fetched", res.Raw)

	cached, ok := tenant.Cache.LookupByID("id-2")
	assert.True(t, ok, "on-demand fetch is installed into the cache")
	assert.Equal(t, "fetched", cached.Raw)
}

func TestGetByIDNotFound(t *testing.T) {
	tenant := testTenant(&fakeAdapter{byID: map[string]secretmeta.Entry{}})
	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)

	_, err := c.GetByID(context.Background(), "missing")
	var ce *classify.Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.MissingSecret, ce.Kind)
}

func TestGetByKeyPopulatesEmptyKeyMap(t *testing.T) {
	a := &fakeAdapter{listed: []secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-3", Key: "db-password"}, Raw: "secret"}}}
	tenant := testTenant(a)

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	res, err := c.GetByKey(context.Background(), "db-password")
	assert.NoError(t, err)
	assert.Equal(t, "secret", res.Raw)
}

func TestGetByKeyUnknownKey(t *testing.T) {
	a := &fakeAdapter{listed: []secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-3", Key: "other"}, Raw: "x"}}}
	tenant := testTenant(a)

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	_, err := c.GetByKey(context.Background(), "nonexistent")

	var ce *classify.Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.UnknownKey, ce.Kind)
}

func TestGetByKeyRefreshOnMissPolicy(t *testing.T) {
	a := &fakeAdapter{listed: []secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-4", Key: "stale"}, Raw: "v"}}}
	tenant := testTenant(a)
	tenant.Cache.Install([]secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-9", Key: "other-key"}, Raw: "placeholder"}})

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, true)
	res, err := c.GetByKey(context.Background(), "stale")
	assert.NoError(t, err)
	assert.Equal(t, "v", res.Raw)
}

func TestResetAndStats(t *testing.T) {
	tenant := testTenant(&fakeAdapter{})
	tenant.Cache.Install([]secretmeta.Entry{{Meta: secretmeta.Meta{ID: "id-1", Key: "k"}, Raw: "v"}})

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	stats := c.Stats()
	assert.Equal(t, 1, stats.SecretCount)

	reset := c.Reset()
	assert.Equal(t, 1, reset.SecretCount)
	assert.Equal(t, 0, c.Stats().SecretCount)
}

func TestListAllErrorIsClassified(t *testing.T) {
	a := &fakeAdapter{listErr: errors.New("401 Unauthorized: bad token")}
	tenant := testTenant(a)

	c := New(tenant, pacer.New(time.Millisecond, testLogger()), testLogger(), false, false)
	_, err := c.GetByKey(context.Background(), "anything")

	var ce *classify.Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, classify.Unauthorized, ce.Kind)
}
