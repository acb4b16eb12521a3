package pacer

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/registry"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/tenantcache"
	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/upstream"
)

type fakeAdapter struct {
	delay   time.Duration
	entry   secretmeta.Entry
	found   bool
	err     error
	calls   int32
	maxSeen int32
}

func (f *fakeAdapter) Authenticate(ctx context.Context, token, path string) error { return nil }
func (f *fakeAdapter) ListAll(ctx context.Context, org string) ([]secretmeta.Entry, error) {
	return nil, nil
}
func (f *fakeAdapter) SyncSince(ctx context.Context, watermark time.Time) (upstream.SyncResult, error) {
	return upstream.SyncResult{}, nil
}
func (f *fakeAdapter) GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error) {
	cur := atomic.AddInt32(&f.calls, 1)
	for {
		prev := atomic.LoadInt32(&f.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&f.maxSeen, prev, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	atomic.AddInt32(&f.calls, -1)
	return f.entry, f.found, f.err
}

func testTenant(a upstream.Adapter) *registry.Tenant {
	return &registry.Tenant{
		Fingerprint: "fp",
		Upstream:    a,
		Cache:       tenantcache.New(),
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestSubmitReturnsUpstreamResult(t *testing.T) {
	a := &fakeAdapter{entry: secretmeta.Entry{Meta: secretmeta.Meta{ID: "id-1"}, Raw: "value"}, found: true}
	p := New(10*time.Millisecond, testLogger())

	entry, found, err := p.Submit(context.Background(), testTenant(a), "id-1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", entry.Raw)
}

func TestSubmitPropagatesUpstreamError(t *testing.T) {
	a := &fakeAdapter{err: errors.New("404 Not Found: Secret not found: id-1")}
	p := New(10*time.Millisecond, testLogger())

	_, _, err := p.Submit(context.Background(), testTenant(a), "id-1")
	assert.Error(t, err)
}

// slowAdapter lets a test pin down exactly when GetByID starts and
// returns, so the submitter's context can be canceled while the worker
// is still mid-call.
type slowAdapter struct {
	started chan struct{}
	release chan struct{}
	entry   secretmeta.Entry
}

func (f *slowAdapter) Authenticate(ctx context.Context, token, path string) error { return nil }
func (f *slowAdapter) ListAll(ctx context.Context, org string) ([]secretmeta.Entry, error) {
	return nil, nil
}
func (f *slowAdapter) SyncSince(ctx context.Context, watermark time.Time) (upstream.SyncResult, error) {
	return upstream.SyncResult{}, nil
}
func (f *slowAdapter) GetByID(ctx context.Context, id string) (secretmeta.Entry, bool, error) {
	close(f.started)
	<-f.release
	return f.entry, true, nil
}

func TestWorkerCrashesWhenSubmitterAbandonsReply(t *testing.T) {
	a := &slowAdapter{started: make(chan struct{}), release: make(chan struct{})}
	p := New(20*time.Millisecond, testLogger())
	tenant := testTenant(a)

	ctx, cancel := context.WithCancel(context.Background())
	submitDone := make(chan struct{})
	go func() {
		_, _, _ = p.Submit(ctx, tenant, "id-1")
		close(submitDone)
	}()

	<-a.started
	cancel()
	<-submitDone

	close(a.release)

	time.Sleep(3 * p.interval)
	assert.True(t, p.Crashed(), "worker should mark itself crashed when the reply rendezvous times out")
}

func TestSubmitSerializesConcurrentCalls(t *testing.T) {
	a := &fakeAdapter{delay: 20 * time.Millisecond, found: true}
	p := New(5*time.Millisecond, testLogger())
	tenant := testTenant(a)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _, _ = p.Submit(context.Background(), tenant, "id-1")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&a.maxSeen), "at most one upstream call should be in flight at a time")
}
