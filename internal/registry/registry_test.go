package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

type fakeAdapter struct{}

func (fakeAdapter) Authenticate(ctx context.Context, token string, path string) error { return nil }
func (fakeAdapter) ListAll(ctx context.Context, org string) ([]secretmeta.Entry, error) {
	return nil, nil
}
func (fakeAdapter) SyncSince(ctx context.Context, watermark time.Time) (upstream.SyncResult, error) {
	return upstream.SyncResult{}, nil
}
func (fakeAdapter) GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error) {
	return secretmeta.Entry{}, false, nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testRegion() secretmeta.Region {
	return secretmeta.Region{APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"}
}

func TestGetOrCreateReturnsSameTenant(t *testing.T) {
	var built int
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		built++
		return fakeAdapter{}
	}, testLogger())

	a := r.GetOrCreate("token-1", testRegion())
	b := r.GetOrCreate("token-1", testRegion())

	assert.Same(t, a, b)
	assert.Equal(t, 1, built)
}

func TestGetOrCreateIsConcurrencySafe(t *testing.T) {
	var built int32
	var mu sync.Mutex
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		mu.Lock()
		built++
		mu.Unlock()
		return fakeAdapter{}
	}, testLogger())

	region := testRegion()
	var wg sync.WaitGroup
	tenants := make([]*Tenant, 50)
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			tenants[i] = r.GetOrCreate("same-token", region)
		}()
	}
	wg.Wait()

	for i := 1; i < 50; i++ {
		assert.Same(t, tenants[0], tenants[i])
	}
	assert.Equal(t, int32(1), built)
}

func TestDifferentRegionsAreDifferentTenants(t *testing.T) {
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		return fakeAdapter{}
	}, testLogger())

	a := r.GetOrCreate("same-token", secretmeta.Region{APIURL: "https://api.bitwarden.com", IdentityURL: "https://identity.bitwarden.com"})
	b := r.GetOrCreate("same-token", secretmeta.Region{APIURL: "https://api.bitwarden.eu", IdentityURL: "https://identity.bitwarden.eu"})

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, r.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		return fakeAdapter{}
	}, testLogger())

	tenant := r.GetOrCreate("token", testRegion())
	assert.Equal(t, 1, r.Len())

	r.Remove(tenant)
	assert.Equal(t, 0, r.Len())

	r.Remove(tenant)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		return fakeAdapter{}
	}, testLogger())

	r.GetOrCreate("token-a", testRegion())
	r.GetOrCreate("token-b", testRegion())

	snap := r.Snapshot()
	assert.Len(t, snap, 2)

	r.GetOrCreate("token-c", testRegion())
	assert.Len(t, snap, 2, "snapshot must not observe later registrations")
}

func TestTenantStateDefaultsHealthy(t *testing.T) {
	r := New(func(fp secretmeta.Key, token string, region secretmeta.Region) upstream.Adapter {
		return fakeAdapter{}
	}, testLogger())

	tenant := r.GetOrCreate("token", testRegion())
	assert.Equal(t, Healthy, tenant.State())

	tenant.SetState(Quarantined)
	assert.Equal(t, Quarantined, tenant.State())
}
