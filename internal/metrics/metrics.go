package metrics

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// TimerMetric is the exported snapshot of one timer.
type TimerMetric struct {
	Count         int64   `json:"count"`
	TotalTimeMs   int64   `json:"total_time_ms"`
	AverageTimeMs float64 `json:"average_time_ms"`
	MinTimeMs     int64   `json:"min_time_ms"`
	MaxTimeMs     int64   `json:"max_time_ms"`
}

type timer struct {
	count   int64
	totalMs int64
	minMs   int64
	maxMs   int64
}

// Metrics is an in-process collector: event counters, operation timers
// and component health flags, plus process uptime. All methods are safe
// for concurrent use.
type Metrics struct {
	mu        sync.Mutex
	counters  map[string]int64
	timers    map[string]*timer
	health    map[string]bool
	startedAt time.Time
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]int64),
		timers:    make(map[string]*timer),
		health:    make(map[string]bool),
		startedAt: time.Now(),
	}
}

// IncrementCounter adds one to the named counter.
func (m *Metrics) IncrementCounter(name string) {
	m.mu.Lock()
	m.counters[name]++
	m.mu.Unlock()
}

// RecordTransition counts a committed lifecycle transition by event.
func (m *Metrics) RecordTransition(event string) {
	m.IncrementCounter(fmt.Sprintf("transitions:%s", event))
}

// RecordRejectedEvent counts an event turned away by a guard or the
// transition table.
func (m *Metrics) RecordRejectedEvent(event string) {
	m.IncrementCounter(fmt.Sprintf("rejected_events:%s", event))
}

// RecordTimer folds one duration into the named timer.
func (m *Metrics) RecordTimer(name string, durationMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.timers[name]
	if !ok {
		t = &timer{minMs: math.MaxInt64}
		m.timers[name] = t
	}

	t.count++
	t.totalMs += durationMs
	if durationMs < t.minMs {
		t.minMs = durationMs
	}
	if durationMs > t.maxMs {
		t.maxMs = durationMs
	}
}

// SetHealth records a component's health flag.
func (m *Metrics) SetHealth(component string, healthy bool) {
	m.mu.Lock()
	m.health[component] = healthy
	m.mu.Unlock()
}

// GetCounters returns a copy of all counters.
func (m *Metrics) GetCounters() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]int64, len(m.counters))
	for name, v := range m.counters {
		out[name] = v
	}
	return out
}

// GetTimers returns a snapshot of all timers with derived averages.
func (m *Metrics) GetTimers() map[string]TimerMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]TimerMetric, len(m.timers))
	for name, t := range m.timers {
		snap := TimerMetric{
			Count:       t.count,
			TotalTimeMs: t.totalMs,
			MinTimeMs:   t.minMs,
			MaxTimeMs:   t.maxMs,
		}
		if t.count > 0 {
			snap.AverageTimeMs = float64(t.totalMs) / float64(t.count)
		}
		out[name] = snap
	}
	return out
}

// GetHealthChecks returns a copy of all component health flags.
func (m *Metrics) GetHealthChecks() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]bool, len(m.health))
	for name, healthy := range m.health {
		out[name] = healthy
	}
	return out
}

// GetUptimeSeconds returns the seconds since the collector was created.
func (m *Metrics) GetUptimeSeconds() int64 {
	return int64(time.Since(m.startedAt).Seconds())
}

// GetAllMetrics assembles the full snapshot served by the metrics endpoint.
func (m *Metrics) GetAllMetrics() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": m.GetUptimeSeconds(),
		"counters":       m.GetCounters(),
		"timers":         m.GetTimers(),
		"health_checks":  m.GetHealthChecks(),
	}
}
