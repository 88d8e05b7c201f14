package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordParse("rules", 2)
	r.RecordParse("rules", 1)
	r.RecordParse("none", 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.parses.WithLabelValues("rules")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.parses.WithLabelValues("none")))

	r.RecordFallback(false, 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbackCalls.WithLabelValues("error")))

	r.RecordFetch("postgres", "hour", 24, 30*time.Millisecond, nil)
	r.RecordFetch("postgres", "hour", 0, time.Second, errors.New("timeout"))
	assert.Equal(t, 24.0, testutil.ToFloat64(r.fetchRows.WithLabelValues("postgres", "hour")))

	r.RecordCache(true)
	r.RecordCache(false)
	r.RecordCache(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("miss")))

	r.HTTPStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpInFlight))
	r.HTTPFinished("/api/query/parse", "POST", 200, 5*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.httpInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/query/parse", "POST", "200")))
}

func TestNewOnSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
