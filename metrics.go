package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID names one counter or histogram kept by [Metrics].
type MetricID uint16

const (
	// MetricLoginSuccess counts logins that installed a token.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected or failed logins.
	MetricLoginFailure
	// MetricLogout counts logouts, explicit and forced.
	MetricLogout
	// MetricLogoutRemoteFailure counts backend logout calls that failed and were swallowed.
	MetricLogoutRemoteFailure
	// MetricForcedLogout counts logouts caused by a failed refresh.
	MetricForcedLogout
	// MetricRefreshEpisode counts refresh episodes started.
	MetricRefreshEpisode
	// MetricRefreshSuccess counts episodes that installed a new token.
	MetricRefreshSuccess
	// MetricRefreshFailure counts episodes that ended in logout.
	MetricRefreshFailure
	// MetricRefreshWaiterQueued counts requests queued behind an in-flight refresh.
	MetricRefreshWaiterQueued
	// MetricRefreshWaiterRejected counts queued requests rejected by a failed refresh.
	MetricRefreshWaiterRejected
	// MetricReplay counts requests replayed after a refresh.
	MetricReplay
	// MetricReplayFailure counts replays that returned a transport error.
	MetricReplayFailure
	// MetricReplaySkipped counts queued requests whose context ended before replay.
	MetricReplaySkipped
	// MetricLoopPrevented counts 401s on replayed requests returned without a second refresh.
	MetricLoopPrevented
	// MetricStaleTokenReplay counts 401s for requests sent with an already replaced
	// token, replayed with the current token without a refresh.
	MetricStaleTokenReplay
	// MetricPersistenceFailure counts token persistence errors absorbed by the store.
	MetricPersistenceFailure
	// MetricStartupTokenDiscarded counts persisted tokens cleared at startup as invalid or expired.
	MetricStartupTokenDiscarded
	// MetricRefreshLatency is the refresh episode duration histogram.
	MetricRefreshLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and latency histograms. A nil *Metrics
// records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to counter id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records d in histogram id. Only histogram metrics accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || !isHistogram(id) {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter, and every histogram when latency is enabled.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricRefreshLatency].buckets[i])
		}
		s.Histograms[MetricRefreshLatency] = buckets
	}

	return s
}

func isHistogram(id MetricID) bool {
	return id == MetricRefreshLatency
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
