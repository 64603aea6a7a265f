// Package perf provides an observational performance monitor and a small
// benchmark harness. The monitor records operation timings off the hot path
// and never alters the control flow of the code it observes.
package perf

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"
)

// Metric is one completed operation measurement.
type Metric struct {
	Operation string
	Duration  time.Duration
	Success   bool
	Timestamp time.Time
	Context   map[string]string

	// HeapAlloc is the heap size observed when the metric was recorded.
	HeapAlloc uint64
}

// Stats aggregates metrics for one operation over a timeframe.
type Stats struct {
	Count        int
	AvgDuration  time.Duration
	MinDuration  time.Duration
	MaxDuration  time.Duration
	SuccessRate  float64
	OpsPerSecond float64
}

// TrendBucket is one time slice of a trend query.
type TrendBucket struct {
	Start       time.Time
	End         time.Time
	Count       int
	AvgDuration time.Duration
	SuccessRate float64
}

// Config holds monitor configuration.
type Config struct {
	// MaxMetrics bounds the in-memory ring of retained metrics. The oldest
	// entries are overwritten when full.
	MaxMetrics int

	// SampleMemory controls whether each metric captures a heap snapshot.
	// ReadMemStats stops the world briefly, so it is off by default.
	SampleMemory bool
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		MaxMetrics:   10000,
		SampleMemory: false,
	}
}

// Option customizes monitor construction.
type Option func(*Monitor)

// WithClock overrides the monitor's time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor records operation timings into a bounded ring buffer. Safe for
// concurrent use.
type Monitor struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	metrics []Metric
	next    int
	filled  bool
}

// NewMonitor creates a performance monitor.
func NewMonitor(cfg Config, opts ...Option) *Monitor {
	if cfg.MaxMetrics <= 0 {
		cfg.MaxMetrics = DefaultConfig().MaxMetrics
	}

	m := &Monitor{
		cfg:     cfg,
		now:     time.Now,
		metrics: make([]Metric, cfg.MaxMetrics),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timer measures one in-flight operation.
type Timer struct {
	monitor   *Monitor
	operation string
	start     time.Time
	context   map[string]string
}

// StartTimer begins measuring an operation. The optional context is attached
// to the resulting metric.
func (m *Monitor) StartTimer(operation string, kv ...map[string]string) *Timer {
	t := &Timer{
		monitor:   m,
		operation: operation,
		start:     m.now(),
	}
	if len(kv) > 0 {
		t.context = kv[0]
	}
	return t
}

// End finishes the measurement and records the metric. Extra context is
// merged over the context passed to StartTimer.
func (t *Timer) End(success bool, extra ...map[string]string) Metric {
	now := t.monitor.now()
	metric := Metric{
		Operation: t.operation,
		Duration:  now.Sub(t.start),
		Success:   success,
		Timestamp: now,
	}

	if t.context != nil || len(extra) > 0 {
		metric.Context = make(map[string]string, len(t.context))
		for k, v := range t.context {
			metric.Context[k] = v
		}
		for _, m := range extra {
			for k, v := range m {
				metric.Context[k] = v
			}
		}
	}

	if t.monitor.cfg.SampleMemory {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		metric.HeapAlloc = ms.HeapAlloc
	}

	t.monitor.record(metric)

	operationDuration.WithLabelValues(t.operation, boolLabel(success)).Observe(metric.Duration.Seconds())
	return metric
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func (m *Monitor) record(metric Metric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics[m.next] = metric
	m.next++
	if m.next == len(m.metrics) {
		m.next = 0
		m.filled = true
	}
}

// snapshot returns retained metrics, oldest first. Caller holds no lock.
func (m *Monitor) snapshot() []Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.filled {
		out := make([]Metric, m.next)
		copy(out, m.metrics[:m.next])
		return out
	}
	out := make([]Metric, 0, len(m.metrics))
	out = append(out, m.metrics[m.next:]...)
	out = append(out, m.metrics[:m.next]...)
	return out
}

// Stats aggregates retained metrics. An empty operation matches all
// operations; a zero timeframe matches all retained metrics.
func (m *Monitor) Stats(operation string, timeframe time.Duration) Stats {
	metrics := m.snapshot()
	now := m.now()

	var s Stats
	var total time.Duration
	var successes int
	var earliest, latest time.Time

	for _, metric := range metrics {
		if operation != "" && metric.Operation != operation {
			continue
		}
		if timeframe > 0 && now.Sub(metric.Timestamp) > timeframe {
			continue
		}

		if s.Count == 0 || metric.Duration < s.MinDuration {
			s.MinDuration = metric.Duration
		}
		if metric.Duration > s.MaxDuration {
			s.MaxDuration = metric.Duration
		}
		if s.Count == 0 || metric.Timestamp.Before(earliest) {
			earliest = metric.Timestamp
		}
		if metric.Timestamp.After(latest) {
			latest = metric.Timestamp
		}
		if metric.Success {
			successes++
		}
		total += metric.Duration
		s.Count++
	}

	if s.Count == 0 {
		return s
	}

	s.AvgDuration = total / time.Duration(s.Count)
	s.SuccessRate = float64(successes) / float64(s.Count)

	if span := latest.Sub(earliest); span > 0 {
		s.OpsPerSecond = float64(s.Count) / span.Seconds()
	}
	return s
}

// Trends splits the retained metrics for one operation into equal time
// buckets between the oldest and newest sample.
func (m *Monitor) Trends(operation string, buckets int) []TrendBucket {
	if buckets <= 0 {
		return nil
	}

	var selected []Metric
	for _, metric := range m.snapshot() {
		if metric.Operation == operation {
			selected = append(selected, metric)
		}
	}
	if len(selected) == 0 {
		return nil
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})

	start := selected[0].Timestamp
	end := selected[len(selected)-1].Timestamp
	span := end.Sub(start)
	if span <= 0 {
		span = time.Nanosecond
	}
	width := span / time.Duration(buckets)
	if width <= 0 {
		width = time.Nanosecond
	}

	out := make([]TrendBucket, buckets)
	for i := range out {
		out[i].Start = start.Add(time.Duration(i) * width)
		out[i].End = out[i].Start.Add(width)
	}

	totals := make([]time.Duration, buckets)
	successes := make([]int, buckets)
	for _, metric := range selected {
		i := int(metric.Timestamp.Sub(start) / width)
		if i >= buckets {
			i = buckets - 1
		}
		out[i].Count++
		totals[i] += metric.Duration
		if metric.Success {
			successes[i]++
		}
	}
	for i := range out {
		if out[i].Count > 0 {
			out[i].AvgDuration = totals[i] / time.Duration(out[i].Count)
			out[i].SuccessRate = float64(successes[i]) / float64(out[i].Count)
		}
	}
	return out
}

// Reset discards all retained metrics.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next = 0
	m.filled = false
}

// Instrument runs op under a timer. The op's error still propagates after
// being recorded; the monitor never swallows failures.
func Instrument[T any](ctx context.Context, m *Monitor, operation string, op func(context.Context) (T, error)) (T, error) {
	timer := m.StartTimer(operation)
	v, err := op(ctx)
	timer.End(err == nil)
	return v, err
}
