package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// SyncMetrics counts reconciler and catalog activity.
type SyncMetrics struct {
	LocalWriteLatency  *Histogram
	RemoteWriteLatency *Histogram
	CatalogLatency     *Histogram

	LocalWrites   atomic.Uint64
	RemoteWrites  atomic.Uint64
	RemoteErrors  atomic.Uint64
	Conflicts     atomic.Uint64
	Retries       atomic.Uint64
	StaleSignals  atomic.Uint64
	CatalogHits   atomic.Uint64
	CatalogMisses atomic.Uint64
	CatalogErrors atomic.Uint64

	startTime time.Time
	mu        sync.RWMutex
}

// NewSyncMetrics creates a new metrics collector.
func NewSyncMetrics() *SyncMetrics {
	return &SyncMetrics{
		LocalWriteLatency:  NewHistogram(0),
		RemoteWriteLatency: NewHistogram(0),
		CatalogLatency:     NewHistogram(0),
		startTime:          time.Now(),
	}
}

// RecordLocalWrite counts a committed local cache write.
func (m *SyncMetrics) RecordLocalWrite(d time.Duration) {
	m.LocalWrites.Add(1)
	m.LocalWriteLatency.Record(d)
}

// RecordRemoteWrite counts a remote patch attempt.
func (m *SyncMetrics) RecordRemoteWrite(d time.Duration, err error) {
	m.RemoteWrites.Add(1)
	m.RemoteWriteLatency.Record(d)
	if err != nil {
		m.RemoteErrors.Add(1)
	}
}

// RecordConflict counts a version conflict reported by the remote.
func (m *SyncMetrics) RecordConflict() { m.Conflicts.Add(1) }

// RecordRetry counts a rebase-and-retry round.
func (m *SyncMetrics) RecordRetry() { m.Retries.Add(1) }

// RecordStale counts a stale signal raised on open.
func (m *SyncMetrics) RecordStale() { m.StaleSignals.Add(1) }

// RecordCatalogLookup counts a catalog lookup. A hit is served from a cache.
func (m *SyncMetrics) RecordCatalogLookup(d time.Duration, hit bool, err error) {
	switch {
	case err != nil:
		m.CatalogErrors.Add(1)
	case hit:
		m.CatalogHits.Add(1)
	default:
		m.CatalogMisses.Add(1)
	}
	if !hit {
		m.CatalogLatency.Record(d)
	}
}

// SyncStats is a point-in-time copy of the counters.
type SyncStats struct {
	LocalWriteLatency  LatencyStats `json:"local_write_latency"`
	RemoteWriteLatency LatencyStats `json:"remote_write_latency"`
	CatalogLatency     LatencyStats `json:"catalog_latency"`

	LocalWrites       uint64  `json:"local_writes"`
	RemoteWrites      uint64  `json:"remote_writes"`
	RemoteErrors      uint64  `json:"remote_errors"`
	Conflicts         uint64  `json:"conflicts"`
	Retries           uint64  `json:"retries"`
	StaleSignals      uint64  `json:"stale_signals"`
	CatalogHits       uint64  `json:"catalog_hits"`
	CatalogMisses     uint64  `json:"catalog_misses"`
	CatalogErrors     uint64  `json:"catalog_errors"`
	CatalogHitRate    float64 `json:"catalog_hit_rate"`    // percentage
	RemoteSuccessRate float64 `json:"remote_success_rate"` // percentage

	Uptime string `json:"uptime"`
}

// GetStats returns a snapshot of the current statistics.
func (m *SyncMetrics) GetStats() *SyncStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := m.CatalogHits.Load()
	misses := m.CatalogMisses.Load()
	writes := m.RemoteWrites.Load()
	errs := m.RemoteErrors.Load()

	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}
	successRate := 0.0
	if writes > 0 {
		successRate = float64(writes-errs) / float64(writes) * 100
	}

	return &SyncStats{
		LocalWriteLatency:  m.LocalWriteLatency.Stats(),
		RemoteWriteLatency: m.RemoteWriteLatency.Stats(),
		CatalogLatency:     m.CatalogLatency.Stats(),
		LocalWrites:        m.LocalWrites.Load(),
		RemoteWrites:       writes,
		RemoteErrors:       errs,
		Conflicts:          m.Conflicts.Load(),
		Retries:            m.Retries.Load(),
		StaleSignals:       m.StaleSignals.Load(),
		CatalogHits:        hits,
		CatalogMisses:      misses,
		CatalogErrors:      m.CatalogErrors.Load(),
		CatalogHitRate:     hitRate,
		RemoteSuccessRate:  successRate,
		Uptime:             time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Reset clears all metrics.
func (m *SyncMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LocalWriteLatency.Reset()
	m.RemoteWriteLatency.Reset()
	m.CatalogLatency.Reset()
	for _, c := range []*atomic.Uint64{
		&m.LocalWrites, &m.RemoteWrites, &m.RemoteErrors, &m.Conflicts, &m.Retries,
		&m.StaleSignals, &m.CatalogHits, &m.CatalogMisses, &m.CatalogErrors,
	} {
		c.Store(0)
	}
	m.startTime = time.Now()
}
