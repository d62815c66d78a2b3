// Package metrics is C11: an in-process counters/histograms sink.
//
// No metrics exporter (prometheus/client_golang, go.opentelemetry.io)
// appears anywhere in the example corpus — every service in the pack
// that tracks performance (PerformanceMetrics, SecurityMonitor) does so
// with a hand-rolled, mutex-guarded struct instead. This package
// follows that same idiom rather than introducing a dependency the
// corpus never reaches for.
package metrics

import (
	"sync"
	"time"
)

type Sink struct {
	mu sync.Mutex

	counters   map[string]int64
	durations  map[string][]time.Duration
	gauges     map[string]int64
}

func New() *Sink {
	return &Sink{
		counters:  make(map[string]int64),
		durations: make(map[string][]time.Duration),
		gauges:    make(map[string]int64),
	}
}

func (s *Sink) Inc(name string) {
	s.Add(name, 1)
}

func (s *Sink) Add(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[name] += delta
}

func (s *Sink) SetGauge(name string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] = value
}

func (s *Sink) IncGauge(name string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges[name] += delta
}

// Observe records a duration sample, capping retained samples per
// name at 1000 so long-running instances don't grow this unbounded.
func (s *Sink) Observe(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	samples := s.durations[name]
	if len(samples) >= 1000 {
		samples = samples[1:]
	}
	s.durations[name] = append(samples, d)
}

// Track is a convenience wrapper: call the returned func when the
// tracked operation completes to record its duration.
func (s *Sink) Track(name string) func() {
	start := time.Now()
	return func() {
		s.Observe(name, time.Since(start))
	}
}

type Snapshot struct {
	Counters map[string]int64           `json:"counters"`
	Gauges   map[string]int64           `json:"gauges"`
	Averages map[string]time.Duration   `json:"averages_ns"`
}

func (s *Sink) Export() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Counters: make(map[string]int64, len(s.counters)),
		Gauges:   make(map[string]int64, len(s.gauges)),
		Averages: make(map[string]time.Duration, len(s.durations)),
	}
	for k, v := range s.counters {
		snap.Counters[k] = v
	}
	for k, v := range s.gauges {
		snap.Gauges[k] = v
	}
	for name, samples := range s.durations {
		if len(samples) == 0 {
			continue
		}
		var total time.Duration
		for _, d := range samples {
			total += d
		}
		snap.Averages[name] = total / time.Duration(len(samples))
	}
	return snap
}
