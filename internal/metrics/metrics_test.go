package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordHitAndMiss(t *testing.T) {
	RecordHit("secret")
	RecordMiss("key")

	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheHits.WithLabelValues("secret")), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(cacheMiss.WithLabelValues("key")), float64(1))
}

func TestSetPacerCrashed(t *testing.T) {
	SetPacerCrashed(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(pacerCrashed))

	SetPacerCrashed(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(pacerCrashed))
}

func TestRecordRefreshError(t *testing.T) {
	RecordRefreshError("rate_limited")
	assert.GreaterOrEqual(t, testutil.ToFloat64(refreshErrors.WithLabelValues("rate_limited")), float64(1))
}

func TestSetCacheSizeAndNumClients(t *testing.T) {
	SetCacheSize("tenant-a", 3, 2)
	assert.Equal(t, float64(3), testutil.ToFloat64(cacheSize.WithLabelValues("secret", "tenant-a")))
	assert.Equal(t, float64(2), testutil.ToFloat64(cacheSize.WithLabelValues("keymap", "tenant-a")))

	SetNumClients(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(numClients))
}
